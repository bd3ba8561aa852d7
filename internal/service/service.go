package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gudangtoko/backend/internal/cache"
	"gudangtoko/backend/internal/domain"
	"gudangtoko/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ValidationError carries every field failure found in one request so the
// client can surface all of them at once.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, "; ")
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
	policy    Policy
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < time.Second {
		reportTTL = time.Minute
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

// dayBounds resolves a YYYY-MM-DD string to the inclusive bounds of that
// calendar day in server-local time.
func dayBounds(date string) (time.Time, time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	from := parsed
	// AddDate lands on the next calendar midnight even across DST changes.
	to := parsed.AddDate(0, 0, 1).Add(-time.Millisecond)
	return from, to, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !s.policy.CanManageCatalog(actor) {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListProductsByDate(ctx context.Context, fromDate string, toDate string) ([]domain.Product, error) {
	from, _, err := dayBounds(fromDate)
	if err != nil {
		return nil, err
	}
	_, to, err := dayBounds(toDate)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", store.ErrInvalidInput)
	}
	return s.repo.ListProductsByDateRange(ctx, from, to)
}

// CreateProduct adds a catalog entry directly, outside the purchase flow.
// Used for initial stock loads; day-to-day intake goes through purchases.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.Name == "" || req.BatchNumber == "" {
		return domain.Product{}, fmt.Errorf("%w: product name and batch number are required", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", store.ErrInvalidInput)
	}
	if req.UnitCost.Sign() <= 0 {
		return domain.Product{}, fmt.Errorf("%w: unit cost must be positive", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:              req.Name,
		BatchNumber:       req.BatchNumber,
		Quantity:          req.Quantity,
		AverageCost:       req.UnitCost,
		TotalCost:         domain.TotalCostFor(req.Quantity, req.UnitCost),
		SellingPrice:      domain.SellingPriceFor(req.UnitCost),
		UnitOfMeasurement: strings.TrimSpace(req.UnitOfMeasurement),
		ReorderLevel:      req.ReorderLevel,
		Remark:            strings.TrimSpace(req.Remark),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,batch=%s,qty=%d", created.Name, created.BatchNumber, created.Quantity))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, id, req)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID, fmt.Sprintf("name=%s,batch=%s", updated.Name, updated.BatchNumber))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}

	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.BatchNumber == "" || req.ProductName == "" {
		return domain.Purchase{}, fmt.Errorf("%w: product name and batch number are required", store.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return domain.Purchase{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if req.UnitCost.Sign() <= 0 {
		return domain.Purchase{}, fmt.Errorf("%w: unit cost must be positive", store.ErrInvalidInput)
	}
	if req.PurchasedBy == "" {
		req.PurchasedBy = actor.Name
	}

	purchase := domain.Purchase{
		BatchNumber: req.BatchNumber,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		PurchasedBy: req.PurchasedBy,
		Reference:   strings.TrimSpace(req.Reference),
	}

	created, err := s.repo.ApplyPurchase(ctx, purchase, strings.TrimSpace(req.UnitOfMeasurement))
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "purchase_record", "purchase", created.ID, fmt.Sprintf("batch=%s,qty=%d,cost=%s", created.BatchNumber, created.Quantity, created.UnitCost))
	return *created, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

// DeletePurchase rolls back a purchase line: the quantity leaves the
// catalog, and the product row is removed when nothing remains.
func (s *Service) DeletePurchase(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.RollbackPurchase(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "purchase_delete", "purchase", id, "")
	return nil
}

func (s *Service) ListPurchases(ctx context.Context, fromDate string, toDate string) ([]domain.Purchase, error) {
	var from, to *time.Time
	if strings.TrimSpace(fromDate) != "" {
		start, _, err := dayBounds(fromDate)
		if err != nil {
			return nil, err
		}
		from = &start
	}
	if strings.TrimSpace(toDate) != "" {
		_, end, err := dayBounds(toDate)
		if err != nil {
			return nil, err
		}
		to = &end
	}
	return s.repo.ListPurchases(ctx, from, to)
}

// CreateTransfer moves stock from the store catalog into the shop. Every
// field failure is collected before rejecting, so a bad request reports
// all of its problems in one round trip.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.Transfer, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Transfer{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	req.ProductName = strings.TrimSpace(req.ProductName)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	req.UnitOfMeasurement = strings.TrimSpace(req.UnitOfMeasurement)
	req.StoreKeeper = strings.TrimSpace(req.StoreKeeper)

	var fields []string
	if req.ProductName == "" {
		fields = append(fields, "productName is required")
	}
	if req.BatchNumber == "" {
		fields = append(fields, "batchNumber is required")
	}
	if req.Quantity <= 0 {
		fields = append(fields, "quantity must be positive")
	}
	if req.SellingPrice.Sign() <= 0 {
		fields = append(fields, "sellingPrice must be positive")
	}
	if req.UnitOfMeasurement == "" {
		fields = append(fields, "unitOfMeasurement is required")
	}
	// The recording clerk defaults to the authenticated actor.
	if req.StoreKeeper == "" {
		req.StoreKeeper = actor.Name
	}
	if len(fields) > 0 {
		return domain.Transfer{}, &ValidationError{Fields: fields}
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = "T" + time.Now().UTC().Format("20060102T150405Z")
	}

	transfer := domain.Transfer{
		ProductName:       req.ProductName,
		BatchNumber:       req.BatchNumber,
		Quantity:          req.Quantity,
		SellingPrice:      req.SellingPrice,
		UnitOfMeasurement: req.UnitOfMeasurement,
		Reference:         reference,
		StoreKeeper:       req.StoreKeeper,
	}

	created, err := s.repo.ApplyTransfer(ctx, transfer)
	if err != nil {
		return domain.Transfer{}, err
	}

	s.logAudit(ctx, "transfer_create", "transfer", created.ID, fmt.Sprintf("batch=%s,qty=%d,ref=%s", created.BatchNumber, created.Quantity, created.Reference))
	return *created, nil
}

// DeleteTransfer removes the movement record only; stock already moved
// stays where it is.
func (s *Service) DeleteTransfer(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteTransfer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "transfer_delete", "transfer", id, "")
	return nil
}

func (s *Service) ListTransfers(ctx context.Context) ([]domain.Transfer, error) {
	return s.repo.ListTransfers(ctx)
}

func (s *Service) ListTransfersByBatch(ctx context.Context, batchNumber string) ([]domain.Transfer, error) {
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return nil, fmt.Errorf("%w: batch number is required", store.ErrInvalidInput)
	}
	return s.repo.ListTransfersByBatch(ctx, batchNumber)
}

func (s *Service) AddShopItem(ctx context.Context, req domain.ShopItemCreateRequest) (domain.ShopItem, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ShopItem{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	req.ProductName = strings.TrimSpace(req.ProductName)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.ProductName == "" || req.BatchNumber == "" {
		return domain.ShopItem{}, fmt.Errorf("%w: product name and batch number are required", store.ErrInvalidInput)
	}
	if req.Quantity < 0 || req.SellingPrice.Sign() <= 0 {
		return domain.ShopItem{}, fmt.Errorf("%w: quantity and selling price must be positive", store.ErrInvalidInput)
	}
	if req.AddedBy == "" {
		req.AddedBy = actor.Name
	}

	item := domain.ShopItem{
		BatchNumber:       req.BatchNumber,
		ProductName:       req.ProductName,
		Quantity:          req.Quantity,
		BuyingPrice:       req.BuyingPrice,
		SellingPrice:      req.SellingPrice,
		UnitOfMeasurement: strings.TrimSpace(req.UnitOfMeasurement),
		AddedBy:           req.AddedBy,
	}

	created, err := s.repo.CreateShopItem(ctx, item)
	if err != nil {
		return domain.ShopItem{}, err
	}
	s.logAudit(ctx, "shop_item_add", "shop_item", created.ID, fmt.Sprintf("batch=%s,qty=%d", created.BatchNumber, created.Quantity))
	return *created, nil
}

func (s *Service) ListShopItems(ctx context.Context) ([]domain.ShopItem, error) {
	return s.repo.ListShopItems(ctx)
}

func (s *Service) GetShopItem(ctx context.Context, id string) (domain.ShopItem, error) {
	item, err := s.repo.GetShopItemByID(ctx, id)
	if err != nil {
		return domain.ShopItem{}, err
	}
	return *item, nil
}

func (s *Service) UpdateShopItem(ctx context.Context, id string, req domain.ShopItemUpdateRequest) (domain.ShopItem, error) {
	updated, err := s.repo.UpdateShopItem(ctx, id, req)
	if err != nil {
		return domain.ShopItem{}, err
	}
	s.logAudit(ctx, "shop_item_update", "shop_item", id, fmt.Sprintf("qty=%d", updated.Quantity))
	return *updated, nil
}

func (s *Service) DeleteShopItem(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteShopItem(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "shop_item_delete", "shop_item", id, "")
	return nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if req.ShopItemID == "" {
		return domain.Sale{}, fmt.Errorf("%w: shop item id is required", store.ErrInvalidInput)
	}
	if req.QuantitySold <= 0 {
		return domain.Sale{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if req.SoldBy == "" {
		req.SoldBy = actor.Name
	}

	sale := domain.Sale{
		QuantitySold: req.QuantitySold,
		SoldBy:       req.SoldBy,
		SaleDate:     time.Now().UTC(),
	}

	created, err := s.repo.ApplySale(ctx, sale, req.ShopItemID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReport(ctx, created.SaleDate)
	s.logAudit(ctx, "sale_record", "sale", created.ID, fmt.Sprintf("batch=%s,qty=%d", created.BatchNumber, created.QuantitySold))
	return *created, nil
}

func (s *Service) EditSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Sale{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	updated, err := s.repo.EditSaleQuantity(ctx, id, req.QuantitySold)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReport(ctx, updated.SaleDate)
	s.logAudit(ctx, "sale_edit", "sale", id, fmt.Sprintf("qty=%d", updated.QuantitySold))
	return *updated, nil
}

// DeleteSale removes the record without restoring shop stock; stock
// corrections go through adjustments.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.invalidateReport(ctx, sale.SaleDate)
	s.logAudit(ctx, "sale_delete", "sale", id, "")
	return nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) ListSalesByDate(ctx context.Context, date string) ([]domain.Sale, error) {
	from, to, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalesByRange(ctx, from, to)
}

func (s *Service) ListSalesByRange(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	from, _, err := dayBounds(fromDate)
	if err != nil {
		return nil, err
	}
	_, to, err := dayBounds(toDate)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", store.ErrInvalidInput)
	}
	return s.repo.ListSalesByRange(ctx, from, to)
}

func reportCacheKey(date string) string {
	return "sales-report:" + date
}

func (s *Service) invalidateReport(ctx context.Context, at time.Time) {
	key := reportCacheKey(at.In(time.Local).Format("2006-01-02"))
	if err := s.reports.Invalidate(ctx, key); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache key=%s: %v", key, err)
	}
}

// DailyReport aggregates one calendar day of sales per batch. Reports are
// cached briefly; any sale mutation for the day evicts the entry.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.SalesReport, error) {
	if strings.TrimSpace(date) == "" {
		date = time.Now().In(time.Local).Format("2006-01-02")
	}
	from, to, err := dayBounds(date)
	if err != nil {
		return domain.SalesReport{}, err
	}

	key := reportCacheKey(from.Format("2006-01-02"))
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	sales, err := s.repo.ListSalesByRange(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	byBatch := map[string]*domain.SalesReportLine{}
	report := domain.SalesReport{
		Date:       from.Format("2006-01-02"),
		GrossTotal: decimal.Zero,
	}
	for _, sale := range sales {
		line, ok := byBatch[sale.BatchNumber]
		if !ok {
			line = &domain.SalesReportLine{
				BatchNumber: sale.BatchNumber,
				ProductName: sale.ProductName,
				Total:       decimal.Zero,
			}
			byBatch[sale.BatchNumber] = line
		}
		line.Quantity += sale.QuantitySold
		line.Total = line.Total.Add(sale.SellingPrice.Mul(decimal.NewFromInt(int64(sale.QuantitySold))))

		report.SaleCount++
		report.UnitsSold += sale.QuantitySold
		report.GrossTotal = report.GrossTotal.Add(sale.SellingPrice.Mul(decimal.NewFromInt(int64(sale.QuantitySold))))
	}

	report.Lines = make([]domain.SalesReportLine, 0, len(byBatch))
	for _, line := range byBatch {
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool { return report.Lines[i].BatchNumber < report.Lines[j].BatchNumber })

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
	}
	return report, nil
}

func (s *Service) CreateAdjustment(ctx context.Context, req domain.AdjustmentCreateRequest) (domain.Adjustment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Adjustment{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	switch req.Type {
	case domain.AdjustmentTypeSale, domain.AdjustmentTypePurchase:
	default:
		return domain.Adjustment{}, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, req.Type)
	}

	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.BatchNumber == "" {
		return domain.Adjustment{}, fmt.Errorf("%w: batch number is required", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return domain.Adjustment{}, fmt.Errorf("%w: quantity must not be negative", store.ErrInvalidInput)
	}
	if req.Type == domain.AdjustmentTypeSale && req.OldQuantity == nil {
		return domain.Adjustment{}, fmt.Errorf("%w: oldQuantity is required for sale adjustments", store.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.Adjustment{}, fmt.Errorf("%w: reason is required", store.ErrInvalidInput)
	}
	if req.RequestedBy == "" {
		req.RequestedBy = actor.Name
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.AdjustmentModeRequested
	}
	if mode == domain.AdjustmentModeDirect && !s.policy.CanApproveAdjustments(actor) {
		return domain.Adjustment{}, fmt.Errorf("%w: admin role required for direct adjustments", ErrForbidden)
	}

	adjustment := domain.Adjustment{
		Type:        req.Type,
		BatchNumber: req.BatchNumber,
		Quantity:    req.Quantity,
		OldQuantity: req.OldQuantity,
		Reason:      strings.TrimSpace(req.Reason),
		RequestedBy: req.RequestedBy,
		Mode:        mode,
	}

	created, err := s.repo.CreateAdjustment(ctx, adjustment)
	if err != nil {
		return domain.Adjustment{}, err
	}
	s.logAudit(ctx, "adjustment_create", "adjustment", created.ID, fmt.Sprintf("type=%s,batch=%s,qty=%d", created.Type, created.BatchNumber, created.Quantity))

	// Direct adjustments by an admin skip the review queue.
	if mode == domain.AdjustmentModeDirect {
		return s.approve(ctx, created.ID, actor.Name)
	}
	return *created, nil
}

func (s *Service) ListAdjustments(ctx context.Context) ([]domain.Adjustment, error) {
	return s.repo.ListAdjustments(ctx)
}

func (s *Service) ApproveAdjustment(ctx context.Context, id string, req domain.AdjustmentResolveRequest) (domain.Adjustment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !s.policy.CanApproveAdjustments(actor) {
		return domain.Adjustment{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	approver := strings.TrimSpace(req.ApprovedBy)
	if approver == "" {
		approver = actor.Name
	}
	return s.approve(ctx, id, approver)
}

func (s *Service) approve(ctx context.Context, id string, approver string) (domain.Adjustment, error) {
	resolved, err := s.repo.ApproveAdjustment(ctx, id, approver, time.Now().UTC())
	if err != nil {
		return domain.Adjustment{}, err
	}
	s.invalidateReport(ctx, time.Now())
	s.logAudit(ctx, "adjustment_approve", "adjustment", resolved.ID, fmt.Sprintf("type=%s,batch=%s", resolved.Type, resolved.BatchNumber))
	return *resolved, nil
}

func (s *Service) RejectAdjustment(ctx context.Context, id string, req domain.AdjustmentResolveRequest) (domain.Adjustment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !s.policy.CanApproveAdjustments(actor) {
		return domain.Adjustment{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	approver := strings.TrimSpace(req.ApprovedBy)
	if approver == "" {
		approver = actor.Name
	}

	resolved, err := s.repo.RejectAdjustment(ctx, id, approver)
	if err != nil {
		return domain.Adjustment{}, err
	}
	s.logAudit(ctx, "adjustment_reject", "adjustment", resolved.ID, fmt.Sprintf("type=%s,batch=%s", resolved.Type, resolved.BatchNumber))
	return *resolved, nil
}

func (s *Service) CreateRequestedProduct(ctx context.Context, req domain.RequestedProductCreateRequest) (domain.RequestedProduct, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RequestedProduct{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.RequestedProduct{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if req.RequestedBy == "" {
		req.RequestedBy = actor.Name
	}

	request := domain.RequestedProduct{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Quantity:    req.Quantity,
		RequestedBy: req.RequestedBy,
	}

	created, err := s.repo.CreateRequestedProduct(ctx, request)
	if err != nil {
		return domain.RequestedProduct{}, err
	}
	s.logAudit(ctx, "requested_product_create", "requested_product", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListRequestedProducts(ctx context.Context) ([]domain.RequestedProduct, error) {
	return s.repo.ListRequestedProducts(ctx)
}

func (s *Service) UpdateRequestedProduct(ctx context.Context, id string, req domain.RequestedProductUpdateRequest) (domain.RequestedProduct, error) {
	updated, err := s.repo.UpdateRequestedProduct(ctx, id, req)
	if err != nil {
		return domain.RequestedProduct{}, err
	}
	s.logAudit(ctx, "requested_product_update", "requested_product", id, string(updated.Status))
	return *updated, nil
}

func (s *Service) DeleteRequestedProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteRequestedProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "requested_product_delete", "requested_product", id, "")
	return nil
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.UserView, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.UserView{}, fmt.Errorf("%w: name and a valid email are required", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return domain.UserView{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserView{}, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Role:     domain.RoleUser,
	})
	if err != nil {
		return domain.UserView{}, err
	}

	s.logAudit(ctx, "user_register", "user", created.ID, created.Email)
	return userView(*created), nil
}

// Authenticate checks credentials and returns the account on success.
// Lookup and compare failures collapse into one error so callers cannot
// tell which emails exist.
func (s *Service) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserAccount{}, fmt.Errorf("%w: invalid credentials", ErrForbidden)
		}
		return domain.UserAccount{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: invalid credentials", ErrForbidden)
	}
	return *user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.UserAccount, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !s.policy.CanViewUsers(actor) {
		return nil, fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	return views, nil
}

func (s *Service) SetUserRole(ctx context.Context, id string, role string) (domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !s.policy.CanChangeRole(actor) {
		return domain.UserView{}, fmt.Errorf("%w: superAdmin role required", ErrForbidden)
	}
	switch role {
	case domain.RoleUser, domain.RoleAdmin, domain.RoleSuperAdmin:
	default:
		return domain.UserView{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserView{}, err
	}
	if user.PrimaryAdmin && role != domain.RoleSuperAdmin {
		return domain.UserView{}, fmt.Errorf("%w: the primary admin cannot be demoted", ErrForbidden)
	}

	user.Role = role
	updated, err := s.repo.UpdateUser(ctx, *user)
	if err != nil {
		return domain.UserView{}, err
	}
	s.logAudit(ctx, "user_role_change", "user", id, role)
	return userView(*updated), nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserView{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		return domain.UserView{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.UserView{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
		}
		user.Name = name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return domain.UserView{}, fmt.Errorf("%w: a valid email is required", store.ErrInvalidInput)
		}
		user.Email = email
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return domain.UserView{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserView{}, err
		}
		user.Password = string(hash)
	}

	updated, err := s.repo.UpdateUser(ctx, *user)
	if err != nil {
		return domain.UserView{}, err
	}
	s.logAudit(ctx, "user_profile_update", "user", updated.ID, "")
	return userView(*updated), nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	target, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanDeleteUser(actor, *target) {
		return fmt.Errorf("%w: not allowed to delete this account", ErrForbidden)
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", "user", id, target.Email)
	return nil
}

// EnsurePrimaryAdmin bootstraps the owner account on first start. It is a
// no-op when any primary admin already exists or when no bootstrap
// password is configured.
func (s *Service) EnsurePrimaryAdmin(ctx context.Context, email string, name string, password string) error {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.PrimaryAdmin {
			return nil
		}
	}
	if password == "" {
		log.Println("[service] WARN: no primary admin exists and PRIMARY_ADMIN_PASSWORD is unset; skipping bootstrap")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Password:     string(hash),
		Role:         domain.RoleSuperAdmin,
		PrimaryAdmin: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return err
	}
	log.Printf("[service] bootstrapped primary admin %s", created.Email)
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = time.Now()
		from = to.Add(-24 * time.Hour)
	} else {
		var err error
		from, to, err = dayBounds(date)
		if err != nil {
			return nil, err
		}
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func userView(u domain.UserAccount) domain.UserView {
	return domain.UserView{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		PrimaryAdmin: u.PrimaryAdmin,
		CreatedAt:    u.CreatedAt,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Name: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
