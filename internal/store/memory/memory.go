package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gudangtoko/backend/internal/domain"
	"gudangtoko/backend/internal/store"
	"gudangtoko/backend/internal/xid"
)

// Store is an in-memory Repository used by the test suite and as the dev
// fallback when DATABASE_URL is unset. A single mutex makes every
// multi-step mutation atomic, mirroring the transactional guarantees of
// the postgres store.
type Store struct {
	mu                sync.RWMutex
	productsByID      map[string]domain.Product
	purchasesByID     map[string]domain.Purchase
	shopItemsByID     map[string]domain.ShopItem
	salesByID         map[string]domain.Sale
	transfersByID     map[string]domain.Transfer
	adjustmentsByID   map[string]domain.Adjustment
	requestedByID     map[string]domain.RequestedProduct
	usersByID         map[string]domain.UserAccount
	auditLogs         []domain.AuditLog
}

func New() *Store {
	return &Store{
		productsByID:    map[string]domain.Product{},
		purchasesByID:   map[string]domain.Purchase{},
		shopItemsByID:   map[string]domain.ShopItem{},
		salesByID:       map[string]domain.Sale{},
		transfersByID:   map[string]domain.Transfer{},
		adjustmentsByID: map[string]domain.Adjustment{},
		requestedByID:   map[string]domain.RequestedProduct{},
		usersByID:       map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store preloaded with dev/demo users and a small
// catalog. Seed credentials come from SEED_ADMIN_PASSWORD and
// SEED_USER_PASSWORD; hardcoded dev defaults are used with a warning when
// unset. Production deployments use PostgreSQL and never hit this path.
func NewSeeded() *Store {
	s := New()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	userPwd := envOr("SEED_USER_PASSWORD", "user123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
		primary  bool
	}{
		{"Pemilik Toko", "owner@gudangtoko.local", adminPwd, domain.RoleSuperAdmin, true},
		{"Admin Gudang", "admin@gudangtoko.local", adminPwd, domain.RoleAdmin, false},
		{"Staf Toko", "staff@gudangtoko.local", userPwd, domain.RoleUser, false},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		id := xid.New("user")
		s.usersByID[id] = domain.UserAccount{
			ID:           id,
			Name:         u.name,
			Email:        u.email,
			Password:     string(hash),
			Role:         u.role,
			PrimaryAdmin: u.primary,
			CreatedAt:    now,
		}
	}

	for _, p := range []struct {
		name  string
		batch string
		qty   int
		cost  float64
		uom   string
	}{
		{"Beras Premium 5kg", "BRS-2401", 40, 62000, "bag"},
		{"Minyak Goreng 2L", "MYK-2402", 60, 34000, "bottle"},
		{"Gula Pasir 1kg", "GLA-2403", 80, 16500, "pack"},
		{"Tepung Terigu 1kg", "TPG-2404", 50, 12000, "pack"},
	} {
		cost := decimal.NewFromFloat(p.cost)
		product := domain.Product{
			ID:                xid.New("prod"),
			Name:              p.name,
			BatchNumber:       p.batch,
			Quantity:          p.qty,
			AverageCost:       cost,
			TotalCost:         domain.TotalCostFor(p.qty, cost),
			SellingPrice:      domain.SellingPriceFor(cost),
			UnitOfMeasurement: p.uom,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.productsByID[product.ID] = product
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.BatchNumber == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productByBatchLocked(product.BatchNumber); exists {
		return nil, fmt.Errorf("%w: batch %s", store.ErrDuplicate, product.BatchNumber)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) ListProductsByDateRange(_ context.Context, from time.Time, to time.Time) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.CreatedAt.Before(from) || p.CreatedAt.After(to) {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].CreatedAt.Before(products[j].CreatedAt) })
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductByBatch(_ context.Context, batchNumber string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productByBatchLocked(batchNumber)
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) productByBatchLocked(batchNumber string) (domain.Product, bool) {
	for _, p := range s.productsByID {
		if p.BatchNumber == batchNumber {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) shopItemByBatchLocked(batchNumber string) (domain.ShopItem, bool) {
	for _, item := range s.shopItemsByID {
		if item.BatchNumber == batchNumber {
			return item, true
		}
	}
	return domain.ShopItem{}, false
}

// UpdateProduct applies the requested fields. A rename is propagated to the
// shop entry for the same batch so the two locations never drift apart;
// ledger lines keep their historical snapshots.
func (s *Store) UpdateProduct(_ context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		product.Name = name
		if item, exists := s.shopItemByBatchLocked(product.BatchNumber); exists {
			item.ProductName = name
			s.shopItemsByID[item.ID] = item
		}
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.Sign() <= 0 {
			return nil, store.ErrInvalidInput
		}
		product.SellingPrice = *req.SellingPrice
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return nil, store.ErrInvalidInput
		}
		product.ReorderLevel = *req.ReorderLevel
	}
	if req.Remark != nil {
		product.Remark = strings.TrimSpace(*req.Remark)
	}

	product.UpdatedAt = time.Now().UTC()
	s.productsByID[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	return nil
}

func (s *Store) ApplyPurchase(_ context.Context, purchase domain.Purchase, unitOfMeasurement string) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.Quantity <= 0 || purchase.UnitCost.Sign() <= 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.PurchaseDate.IsZero() {
		purchase.PurchaseDate = time.Now().UTC()
	}

	now := time.Now().UTC()
	if product, ok := s.productByBatchLocked(purchase.BatchNumber); ok {
		product.AverageCost = domain.WeightedAverageCost(product.TotalCost, product.Quantity, purchase.Quantity, purchase.UnitCost)
		product.Quantity += purchase.Quantity
		product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
		product.SellingPrice = domain.SellingPriceFor(product.AverageCost)
		product.UpdatedAt = now
		s.productsByID[product.ID] = product
		purchase.AverageCost = product.AverageCost
	} else {
		product = domain.Product{
			ID:                xid.New("prod"),
			Name:              purchase.ProductName,
			BatchNumber:       purchase.BatchNumber,
			Quantity:          purchase.Quantity,
			AverageCost:       purchase.UnitCost,
			TotalCost:         domain.TotalCostFor(purchase.Quantity, purchase.UnitCost),
			SellingPrice:      domain.SellingPriceFor(purchase.UnitCost),
			UnitOfMeasurement: unitOfMeasurement,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.productsByID[product.ID] = product
		purchase.AverageCost = purchase.UnitCost
	}

	purchase.TotalCost = purchase.UnitCost.Mul(decimal.NewFromInt(int64(purchase.Quantity)))
	s.purchasesByID[purchase.ID] = purchase
	created := purchase
	return &created, nil
}

// RollbackPurchase removes a ledger line and backs its quantity out of the
// catalog. A product driven to zero or below is deleted outright, cost
// history included.
func (s *Store) RollbackPurchase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchasesByID[id]
	if !ok {
		return store.ErrNotFound
	}

	if product, exists := s.productByBatchLocked(purchase.BatchNumber); exists {
		product.Quantity -= purchase.Quantity
		if product.Quantity <= 0 {
			delete(s.productsByID, product.ID)
		} else {
			product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
			product.UpdatedAt = time.Now().UTC()
			s.productsByID[product.ID] = product
		}
	}

	delete(s.purchasesByID, id)
	return nil
}

func (s *Store) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchasesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := purchase
	return &found, nil
}

func (s *Store) ListPurchases(_ context.Context, from *time.Time, to *time.Time) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, 0, len(s.purchasesByID))
	for _, p := range s.purchasesByID {
		if from != nil && p.PurchaseDate.Before(*from) {
			continue
		}
		if to != nil && p.PurchaseDate.After(*to) {
			continue
		}
		purchases = append(purchases, p)
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].PurchaseDate.After(purchases[j].PurchaseDate) })
	return purchases, nil
}

func (s *Store) ApplyTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productByBatchLocked(transfer.BatchNumber)
	if !ok {
		return nil, fmt.Errorf("%w: product not found in store", store.ErrNotFound)
	}
	if transfer.Quantity > product.Quantity {
		return nil, fmt.Errorf("%w: only %d available in store", store.ErrInsufficientStock, product.Quantity)
	}

	now := time.Now().UTC()
	product.Quantity -= transfer.Quantity
	product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
	product.UpdatedAt = now
	// The catalog row survives at zero quantity; only a purchase rollback
	// removes it.
	s.productsByID[product.ID] = product

	if item, exists := s.shopItemByBatchLocked(transfer.BatchNumber); exists {
		item.Quantity += transfer.Quantity
		s.shopItemsByID[item.ID] = item
	} else {
		item = domain.ShopItem{
			ID:                xid.New("shop"),
			BatchNumber:       transfer.BatchNumber,
			ProductName:       transfer.ProductName,
			Quantity:          transfer.Quantity,
			BuyingPrice:       product.AverageCost,
			SellingPrice:      transfer.SellingPrice,
			UnitOfMeasurement: transfer.UnitOfMeasurement,
			AddedBy:           transfer.StoreKeeper,
			DateAdded:         now,
		}
		s.shopItemsByID[item.ID] = item
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("tr")
	}
	if transfer.TransferredAt.IsZero() {
		transfer.TransferredAt = now
	}
	s.transfersByID[transfer.ID] = transfer
	created := transfer
	return &created, nil
}

func (s *Store) DeleteTransfer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.transfersByID, id)
	return nil
}

func (s *Store) ListTransfers(_ context.Context) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.Transfer, 0, len(s.transfersByID))
	for _, t := range s.transfersByID {
		transfers = append(transfers, t)
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].TransferredAt.After(transfers[j].TransferredAt) })
	return transfers, nil
}

func (s *Store) ListTransfersByBatch(_ context.Context, batchNumber string) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.Transfer, 0, 8)
	for _, t := range s.transfersByID {
		if t.BatchNumber == batchNumber {
			transfers = append(transfers, t)
		}
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].TransferredAt.After(transfers[j].TransferredAt) })
	return transfers, nil
}

func (s *Store) CreateShopItem(_ context.Context, item domain.ShopItem) (*domain.ShopItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.BatchNumber == "" || item.ProductName == "" || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.shopItemByBatchLocked(item.BatchNumber); exists {
		return nil, fmt.Errorf("%w: batch %s", store.ErrDuplicate, item.BatchNumber)
	}
	if item.ID == "" {
		item.ID = xid.New("shop")
	}
	if item.DateAdded.IsZero() {
		item.DateAdded = time.Now().UTC()
	}
	s.shopItemsByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) ListShopItems(_ context.Context) ([]domain.ShopItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.ShopItem, 0, len(s.shopItemsByID))
	for _, item := range s.shopItemsByID {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductName < items[j].ProductName })
	return items, nil
}

func (s *Store) GetShopItemByID(_ context.Context, id string) (*domain.ShopItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.shopItemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) UpdateShopItem(_ context.Context, id string, req domain.ShopItemUpdateRequest) (*domain.ShopItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.shopItemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.ProductName != nil {
		name := strings.TrimSpace(*req.ProductName)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		item.ProductName = name
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.Sign() <= 0 {
			return nil, store.ErrInvalidInput
		}
		item.SellingPrice = *req.SellingPrice
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, store.ErrInvalidInput
		}
		item.Quantity = *req.Quantity
	}

	if item.Quantity == 0 && req.Quantity != nil {
		delete(s.shopItemsByID, id)
	} else {
		s.shopItemsByID[id] = item
	}
	updated := item
	return &updated, nil
}

func (s *Store) DeleteShopItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shopItemsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.shopItemsByID, id)
	return nil
}

func (s *Store) ApplySale(_ context.Context, sale domain.Sale, shopItemID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.shopItemsByID[shopItemID]
	if !ok {
		return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
	}
	if sale.QuantitySold <= 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.QuantitySold > item.Quantity {
		return nil, fmt.Errorf("%w: only %d available in shop", store.ErrInsufficientStock, item.Quantity)
	}

	sale.ProductName = item.ProductName
	sale.BatchNumber = item.BatchNumber
	sale.SellingPrice = item.SellingPrice
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}
	s.salesByID[sale.ID] = sale

	item.Quantity -= sale.QuantitySold
	if item.Quantity == 0 {
		delete(s.shopItemsByID, item.ID)
	} else {
		s.shopItemsByID[item.ID] = item
	}

	created := sale
	return &created, nil
}

func (s *Store) EditSaleQuantity(_ context.Context, id string, newQuantity int) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newQuantity <= 0 {
		return nil, store.ErrInvalidInput
	}
	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	item, ok := s.shopItemByBatchLocked(sale.BatchNumber)
	if !ok {
		return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
	}

	delta := newQuantity - sale.QuantitySold
	switch {
	case delta < 0:
		item.Quantity += -delta
	case delta > 0:
		if item.Quantity < delta {
			return nil, fmt.Errorf("%w: only %d available in shop", store.ErrInsufficientStock, item.Quantity)
		}
		item.Quantity -= delta
	}
	s.shopItemsByID[item.ID] = item

	sale.QuantitySold = newQuantity
	s.salesByID[id] = sale
	updated := sale
	return &updated, nil
}

// DeleteSale removes the ledger line only. Shop quantity is deliberately
// not restored; reversals go through the adjustment workflow.
func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].SaleDate.After(sales[j].SaleDate) })
	return sales, nil
}

func (s *Store) ListSalesByRange(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.SaleDate.Before(from) || sale.SaleDate.After(to) {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].SaleDate.After(sales[j].SaleDate) })
	return sales, nil
}

func (s *Store) CreateAdjustment(_ context.Context, adjustment domain.Adjustment) (*domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}
	adjustment.Status = domain.AdjustmentStatusPending
	s.adjustmentsByID[adjustment.ID] = adjustment
	created := adjustment
	return &created, nil
}

func (s *Store) ListAdjustments(_ context.Context) ([]domain.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustments := make([]domain.Adjustment, 0, len(s.adjustmentsByID))
	for _, adj := range s.adjustmentsByID {
		adjustments = append(adjustments, adj)
	}
	sort.Slice(adjustments, func(i, j int) bool { return adjustments[i].CreatedAt.After(adjustments[j].CreatedAt) })
	return adjustments, nil
}

// ApproveAdjustment is the only state transition with inventory side
// effects: it reverses the corrected transaction and reapplies it at the
// target quantity, all under one lock.
func (s *Store) ApproveAdjustment(_ context.Context, id string, approver string, at time.Time) (*domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjustment, ok := s.adjustmentsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: invalid adjustment", store.ErrNotFound)
	}
	if adjustment.Status != domain.AdjustmentStatusPending {
		return nil, fmt.Errorf("%w: invalid adjustment", store.ErrAlreadyProcessed)
	}

	product, ok := s.productByBatchLocked(adjustment.BatchNumber)
	if !ok {
		return nil, fmt.Errorf("%w: product not found in store", store.ErrNotFound)
	}

	switch adjustment.Type {
	case domain.AdjustmentTypeSale:
		item, exists := s.shopItemByBatchLocked(adjustment.BatchNumber)
		if !exists {
			return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
		}
		if item.Quantity < adjustment.Quantity {
			return nil, fmt.Errorf("%w: not enough stock to reverse the sale", store.ErrInsufficientStock)
		}
		oldQty := 0
		if adjustment.OldQuantity != nil {
			oldQty = *adjustment.OldQuantity
		}

		reversal := domain.Sale{
			ID:           xid.New("sale"),
			ProductName:  item.ProductName,
			BatchNumber:  item.BatchNumber,
			QuantitySold: -oldQty,
			SellingPrice: item.SellingPrice,
			SaleDate:     at,
			SoldBy:       approver,
		}
		corrected := domain.Sale{
			ID:           xid.New("sale"),
			ProductName:  item.ProductName,
			BatchNumber:  item.BatchNumber,
			QuantitySold: adjustment.Quantity,
			SellingPrice: item.SellingPrice,
			SaleDate:     at,
			SoldBy:       approver,
		}
		s.salesByID[reversal.ID] = reversal
		s.salesByID[corrected.ID] = corrected

		if oldQty > adjustment.Quantity {
			item.Quantity += oldQty - adjustment.Quantity
			s.shopItemsByID[item.ID] = item
		}

	case domain.AdjustmentTypePurchase:
		oldQty := product.Quantity
		if adjustment.OldQuantity != nil {
			oldQty = *adjustment.OldQuantity
		}

		reversal := domain.Purchase{
			ID:           xid.New("pur"),
			BatchNumber:  product.BatchNumber,
			ProductName:  product.Name,
			Quantity:     -oldQty,
			UnitCost:     product.AverageCost,
			AverageCost:  product.AverageCost,
			TotalCost:    domain.TotalCostFor(-oldQty, product.AverageCost),
			PurchasedBy:  approver,
			PurchaseDate: at,
		}
		corrected := domain.Purchase{
			ID:           xid.New("pur"),
			BatchNumber:  product.BatchNumber,
			ProductName:  product.Name,
			Quantity:     adjustment.Quantity,
			UnitCost:     product.AverageCost,
			AverageCost:  product.AverageCost,
			TotalCost:    domain.TotalCostFor(adjustment.Quantity, product.AverageCost),
			PurchasedBy:  approver,
			PurchaseDate: at,
		}
		s.purchasesByID[reversal.ID] = reversal
		s.purchasesByID[corrected.ID] = corrected

		// The adjustment's target quantity is authoritative, not additive.
		product.Quantity = adjustment.Quantity
		product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
		product.UpdatedAt = at
		s.productsByID[product.ID] = product

	default:
		return nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, adjustment.Type)
	}

	adjustment.Status = domain.AdjustmentStatusApproved
	adjustment.ApprovedBy = approver
	s.adjustmentsByID[id] = adjustment
	resolved := adjustment
	return &resolved, nil
}

func (s *Store) RejectAdjustment(_ context.Context, id string, approver string) (*domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjustment, ok := s.adjustmentsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: not found or already processed", store.ErrNotFound)
	}
	if adjustment.Status != domain.AdjustmentStatusPending {
		return nil, fmt.Errorf("%w: not found or already processed", store.ErrAlreadyProcessed)
	}

	adjustment.Status = domain.AdjustmentStatusRejected
	adjustment.ApprovedBy = approver
	s.adjustmentsByID[id] = adjustment
	resolved := adjustment
	return &resolved, nil
}

func (s *Store) CreateRequestedProduct(_ context.Context, req domain.RequestedProduct) (*domain.RequestedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if req.ID == "" {
		req.ID = xid.New("req")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}
	if req.Status == "" {
		req.Status = domain.RequestedProductStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	s.requestedByID[req.ID] = req
	created := req
	return &created, nil
}

func (s *Store) ListRequestedProducts(_ context.Context) ([]domain.RequestedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]domain.RequestedProduct, 0, len(s.requestedByID))
	for _, r := range s.requestedByID {
		requests = append(requests, r)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	return requests, nil
}

func (s *Store) UpdateRequestedProduct(_ context.Context, id string, req domain.RequestedProductUpdateRequest) (*domain.RequestedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requestedByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		existing.Name = name
	}
	if req.Description != nil {
		existing.Description = strings.TrimSpace(*req.Description)
	}
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		existing.Quantity = *req.Quantity
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.RequestedProductStatusPending, domain.RequestedProductStatusPurchased, domain.RequestedProductStatusFulfilled:
			existing.Status = *req.Status
		default:
			return nil, store.ErrInvalidInput
		}
	}

	s.requestedByID[id] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteRequestedProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requestedByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.requestedByID, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email == "" || user.Name == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.usersByID {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByID {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, other := range s.usersByID {
		if other.ID != user.ID && strings.EqualFold(other.Email, user.Email) {
			return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
	}
	user.CreatedAt = existing.CreatedAt
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
