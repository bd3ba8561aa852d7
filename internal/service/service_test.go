package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gudangtoko/backend/internal/cache"
	"gudangtoko/backend/internal/domain"
	"gudangtoko/backend/internal/store"
	"gudangtoko/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopReportCache{}, time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:   "user-admin",
		Name: "Admin Gudang",
		Role: domain.RoleAdmin,
	})
}

func userCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:   "user-staff",
		Name: "Staf Toko",
		Role: domain.RoleUser,
	})
}

func mustPurchase(t *testing.T, svc *Service, batch string, name string, qty int, cost float64) domain.Purchase {
	t.Helper()
	purchase, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{
		BatchNumber:       batch,
		ProductName:       name,
		Quantity:          qty,
		UnitCost:          decimal.NewFromFloat(cost),
		UnitOfMeasurement: "pack",
	})
	if err != nil {
		t.Fatalf("record purchase failed: %v", err)
	}
	return purchase
}

func mustTransfer(t *testing.T, svc *Service, batch string, name string, qty int, sellingPrice float64) domain.Transfer {
	t.Helper()
	transfer, err := svc.CreateTransfer(userCtx(), domain.TransferCreateRequest{
		ProductName:       name,
		BatchNumber:       batch,
		Quantity:          qty,
		SellingPrice:      decimal.NewFromFloat(sellingPrice),
		UnitOfMeasurement: "pack",
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	return transfer
}

func shopItemByBatch(t *testing.T, svc *Service, batch string) domain.ShopItem {
	t.Helper()
	items, err := svc.ListShopItems(context.Background())
	if err != nil {
		t.Fatalf("list shop items failed: %v", err)
	}
	for _, item := range items {
		if item.BatchNumber == batch {
			return item
		}
	}
	t.Fatalf("no shop item for batch %s", batch)
	return domain.ShopItem{}
}

func TestPurchaseCreatesProductWithDerivedPrices(t *testing.T) {
	svc := newTestService()

	mustPurchase(t, svc, "B-100", "Beras Premium", 10, 5)

	products, err := svc.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	p := products[0]
	if p.Quantity != 10 {
		t.Fatalf("expected quantity 10, got %d", p.Quantity)
	}
	if !p.AverageCost.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected average cost 5, got %s", p.AverageCost)
	}
	if !p.TotalCost.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total cost 50, got %s", p.TotalCost)
	}
	if !p.SellingPrice.Equal(decimal.NewFromFloat(5.5)) {
		t.Fatalf("expected selling price 5.5, got %s", p.SellingPrice)
	}
}

func TestPurchaseRecomputesWeightedAverage(t *testing.T) {
	svc := newTestService()

	mustPurchase(t, svc, "B-100", "Beras Premium", 10, 5)
	second := mustPurchase(t, svc, "B-100", "Beras Premium", 10, 10)

	products, _ := svc.ListProducts(context.Background())
	p := products[0]
	if p.Quantity != 20 {
		t.Fatalf("expected quantity 20, got %d", p.Quantity)
	}
	if !p.AverageCost.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("expected average cost 7.5, got %s", p.AverageCost)
	}
	if !p.TotalCost.Equal(p.AverageCost.Mul(decimal.NewFromInt(int64(p.Quantity)))) {
		t.Fatalf("total cost %s does not equal quantity x average cost", p.TotalCost)
	}
	if !p.SellingPrice.Equal(decimal.NewFromFloat(8.25)) {
		t.Fatalf("expected selling price 8.25, got %s", p.SellingPrice)
	}

	// The ledger line snapshots the post-purchase average and its own line total.
	if !second.AverageCost.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("expected line average 7.5, got %s", second.AverageCost)
	}
	if !second.TotalCost.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected line total 100, got %s", second.TotalCost)
	}
}

func TestPurchaseValidation(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{
		BatchNumber: "B-1",
		ProductName: "Gula",
		Quantity:    0,
		UnitCost:    decimal.NewFromInt(3),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}

	_, err = svc.RecordPurchase(userCtx(), domain.PurchaseCreateRequest{
		BatchNumber: "B-1",
		ProductName: "Gula",
		Quantity:    5,
		UnitCost:    decimal.NewFromInt(3),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}
}

func TestTransferMovesStockAndPreservesTotals(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-200", "Minyak Goreng", 20, 5)

	transfer := mustTransfer(t, svc, "B-200", "Minyak Goreng", 8, 9)
	if !strings.HasPrefix(transfer.Reference, "T") {
		t.Fatalf("expected generated reference starting with T, got %q", transfer.Reference)
	}

	products, _ := svc.ListProducts(context.Background())
	p := products[0]
	if p.Quantity != 12 {
		t.Fatalf("expected store quantity 12, got %d", p.Quantity)
	}
	if !p.TotalCost.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected store total cost 60, got %s", p.TotalCost)
	}

	item := shopItemByBatch(t, svc, "B-200")
	if item.Quantity != 8 {
		t.Fatalf("expected shop quantity 8, got %d", item.Quantity)
	}
	if !item.BuyingPrice.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected buying price 5, got %s", item.BuyingPrice)
	}
	if !item.SellingPrice.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected selling price 9, got %s", item.SellingPrice)
	}

	// Draining the batch leaves the catalog row in place at zero.
	mustTransfer(t, svc, "B-200", "Minyak Goreng", 12, 9)
	products, _ = svc.ListProducts(context.Background())
	if len(products) != 1 || products[0].Quantity != 0 {
		t.Fatalf("expected product to remain at zero quantity, got %+v", products)
	}
	if shopItemByBatch(t, svc, "B-200").Quantity != 20 {
		t.Fatalf("expected shop to accumulate to 20")
	}
}

func TestTransferInsufficientStock(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-201", "Gula Pasir", 5, 4)

	_, err := svc.CreateTransfer(userCtx(), domain.TransferCreateRequest{
		ProductName:       "Gula Pasir",
		BatchNumber:       "B-201",
		Quantity:          6,
		SellingPrice:      decimal.NewFromInt(6),
		UnitOfMeasurement: "pack",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	products, _ := svc.ListProducts(context.Background())
	if products[0].Quantity != 5 {
		t.Fatalf("failed transfer must not change stock, got %d", products[0].Quantity)
	}
}

func TestTransferValidationCollectsAllFailures(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransfer(userCtx(), domain.TransferCreateRequest{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Fields) != 5 {
		t.Fatalf("expected 5 field failures, got %d: %v", len(vErr.Fields), vErr.Fields)
	}
	joined := err.Error()
	for _, field := range []string{"productName", "batchNumber", "quantity", "sellingPrice", "unitOfMeasurement"} {
		if !strings.Contains(joined, field) {
			t.Fatalf("expected a failure for %s, got %v", field, vErr.Fields)
		}
	}
}

func TestSaleDecrementsAndDeletesShopEntryAtZero(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-300", "Tepung", 10, 3)
	mustTransfer(t, svc, "B-300", "Tepung", 5, 4)
	item := shopItemByBatch(t, svc, "B-300")

	sale, err := svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: 3})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if !sale.SellingPrice.Equal(item.SellingPrice) {
		t.Fatalf("sale must snapshot the shop selling price")
	}
	if sale.SoldBy != "Staf Toko" {
		t.Fatalf("expected soldBy to default to the actor, got %q", sale.SoldBy)
	}
	if shopItemByBatch(t, svc, "B-300").Quantity != 2 {
		t.Fatalf("expected shop quantity 2")
	}

	_, err = svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: 6})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if _, err := svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: 2}); err != nil {
		t.Fatalf("final sale failed: %v", err)
	}
	items, _ := svc.ListShopItems(context.Background())
	if len(items) != 0 {
		t.Fatalf("shop entry must be removed when quantity reaches exactly zero, got %+v", items)
	}
}

func TestEditSaleQuantityAppliesDelta(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-301", "Kopi Bubuk", 20, 6)
	mustTransfer(t, svc, "B-301", "Kopi Bubuk", 10, 10)
	item := shopItemByBatch(t, svc, "B-301")

	sale, err := svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: 4})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	// Shrinking the sale restores the difference.
	if _, err := svc.EditSale(userCtx(), sale.ID, domain.SaleUpdateRequest{QuantitySold: 2}); err != nil {
		t.Fatalf("edit sale failed: %v", err)
	}
	if got := shopItemByBatch(t, svc, "B-301").Quantity; got != 8 {
		t.Fatalf("expected shop quantity 8 after shrink, got %d", got)
	}

	// Growing it consumes additional stock.
	if _, err := svc.EditSale(userCtx(), sale.ID, domain.SaleUpdateRequest{QuantitySold: 9}); err != nil {
		t.Fatalf("edit sale failed: %v", err)
	}
	if got := shopItemByBatch(t, svc, "B-301").Quantity; got != 1 {
		t.Fatalf("expected shop quantity 1 after growth, got %d", got)
	}

	_, err = svc.EditSale(userCtx(), sale.ID, domain.SaleUpdateRequest{QuantitySold: 20})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on oversized edit, got %v", err)
	}
}

func TestPurchaseAdjustmentSetsQuantityAuthoritatively(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-400", "Sabun Mandi", 10, 5)

	created, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypePurchase,
		BatchNumber: "B-400",
		Quantity:    7,
		Reason:      "recount after damage",
	})
	if err != nil {
		t.Fatalf("create adjustment failed: %v", err)
	}
	if created.Status != domain.AdjustmentStatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	approved, err := svc.ApproveAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.AdjustmentStatusApproved || approved.ApprovedBy != "Admin Gudang" {
		t.Fatalf("unexpected resolution: %+v", approved)
	}

	products, _ := svc.ListProducts(context.Background())
	p := products[0]
	if p.Quantity != 7 {
		t.Fatalf("expected quantity set to 7, got %d", p.Quantity)
	}
	if !p.TotalCost.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected total cost 35, got %s", p.TotalCost)
	}

	// A reversal line and a corrected line join the ledger.
	purchases, _ := svc.ListPurchases(context.Background(), "", "")
	var sawReversal, sawCorrection bool
	for _, line := range purchases {
		if line.Quantity == -10 {
			sawReversal = true
		}
		if line.Quantity == 7 {
			sawCorrection = true
		}
	}
	if !sawReversal || !sawCorrection {
		t.Fatalf("expected signed ledger lines, got %+v", purchases)
	}

	// Resolution is terminal.
	if _, err := svc.ApproveAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{}); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on second approve, got %v", err)
	}
	if _, err := svc.RejectAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{}); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on reject after approve, got %v", err)
	}
}

func TestSaleAdjustmentRestoresDifference(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-401", "Susu Kental", 20, 5)
	mustTransfer(t, svc, "B-401", "Susu Kental", 10, 8)
	item := shopItemByBatch(t, svc, "B-401")

	if _, err := svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: 6}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	oldQty := 6
	created, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypeSale,
		BatchNumber: "B-401",
		Quantity:    2,
		OldQuantity: &oldQty,
		Reason:      "customer returned four units",
	})
	if err != nil {
		t.Fatalf("create adjustment failed: %v", err)
	}

	if _, err := svc.ApproveAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if got := shopItemByBatch(t, svc, "B-401").Quantity; got != 8 {
		t.Fatalf("expected shop quantity 4+4=8, got %d", got)
	}

	sales, _ := svc.ListSales(context.Background())
	var sawReversal, sawCorrection bool
	for _, sale := range sales {
		if sale.QuantitySold == -6 {
			sawReversal = true
		}
		if sale.QuantitySold == 2 && sale.SoldBy == "Admin Gudang" {
			sawCorrection = true
		}
	}
	if !sawReversal || !sawCorrection {
		t.Fatalf("expected signed sale lines, got %+v", sales)
	}
}

func TestSaleAdjustmentRequiresOldQuantity(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypeSale,
		BatchNumber: "B-1",
		Quantity:    2,
		Reason:      "typo",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAdjustmentUnknownTypeRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        "restock",
		BatchNumber: "B-1",
		Quantity:    2,
		Reason:      "nope",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown type, got %v", err)
	}
}

func TestRejectLeavesInventoryUntouched(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-402", "Teh Celup", 10, 4)

	created, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypePurchase,
		BatchNumber: "B-402",
		Quantity:    3,
		Reason:      "suspected miscount",
	})
	if err != nil {
		t.Fatalf("create adjustment failed: %v", err)
	}

	rejected, err := svc.RejectAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != domain.AdjustmentStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}

	products, _ := svc.ListProducts(context.Background())
	if products[0].Quantity != 10 {
		t.Fatalf("reject must not touch inventory, got %d", products[0].Quantity)
	}

	if _, err := svc.ApproveAdjustment(adminCtx(), created.ID, domain.AdjustmentResolveRequest{}); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed after reject, got %v", err)
	}
}

func TestDirectAdjustmentRequiresAdmin(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-403", "Garam", 10, 2)

	_, err := svc.CreateAdjustment(userCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypePurchase,
		BatchNumber: "B-403",
		Quantity:    5,
		Reason:      "shrinkage",
		Mode:        domain.AdjustmentModeDirect,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for direct mode by user, got %v", err)
	}

	resolved, err := svc.CreateAdjustment(adminCtx(), domain.AdjustmentCreateRequest{
		Type:        domain.AdjustmentTypePurchase,
		BatchNumber: "B-403",
		Quantity:    5,
		Reason:      "shrinkage",
		Mode:        domain.AdjustmentModeDirect,
	})
	if err != nil {
		t.Fatalf("direct adjustment failed: %v", err)
	}
	if resolved.Status != domain.AdjustmentStatusApproved {
		t.Fatalf("expected direct adjustment to resolve immediately, got %s", resolved.Status)
	}
	products, _ := svc.ListProducts(context.Background())
	if products[0].Quantity != 5 {
		t.Fatalf("expected quantity 5 after direct adjustment, got %d", products[0].Quantity)
	}
}

func TestPurchaseRollbackRemovesDepletedProduct(t *testing.T) {
	svc := newTestService()
	purchase := mustPurchase(t, svc, "B-500", "Mie Instan", 10, 2)

	if err := svc.DeletePurchase(adminCtx(), purchase.ID); err != nil {
		t.Fatalf("delete purchase failed: %v", err)
	}
	products, _ := svc.ListProducts(context.Background())
	if len(products) != 0 {
		t.Fatalf("expected product removed when stock reaches zero, got %+v", products)
	}

	// A partial rollback keeps the row and its cost basis.
	mustPurchase(t, svc, "B-501", "Kecap Manis", 10, 4)
	second := mustPurchase(t, svc, "B-501", "Kecap Manis", 5, 4)
	if err := svc.DeletePurchase(adminCtx(), second.ID); err != nil {
		t.Fatalf("delete purchase failed: %v", err)
	}
	products, _ = svc.ListProducts(context.Background())
	if len(products) != 1 || products[0].Quantity != 10 {
		t.Fatalf("expected quantity 10 after partial rollback, got %+v", products)
	}
	if !products[0].TotalCost.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected total cost 40, got %s", products[0].TotalCost)
	}
}

func TestDailyReportAggregatesByBatch(t *testing.T) {
	svc := newTestService()
	mustPurchase(t, svc, "B-600", "Sarden Kaleng", 20, 5)
	mustTransfer(t, svc, "B-600", "Sarden Kaleng", 10, 8)
	item := shopItemByBatch(t, svc, "B-600")

	for _, qty := range []int{2, 3} {
		if _, err := svc.RecordSale(userCtx(), domain.SaleCreateRequest{ShopItemID: item.ID, QuantitySold: qty}); err != nil {
			t.Fatalf("record sale failed: %v", err)
		}
	}

	report, err := svc.DailyReport(context.Background(), "")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.SaleCount != 2 || report.UnitsSold != 5 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if !report.GrossTotal.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected gross total 40, got %s", report.GrossTotal)
	}
	if len(report.Lines) != 1 || report.Lines[0].BatchNumber != "B-600" || report.Lines[0].Quantity != 5 {
		t.Fatalf("unexpected report lines: %+v", report.Lines)
	}
}

func TestListSalesByDateRejectsBadInput(t *testing.T) {
	svc := newTestService()
	if _, err := svc.ListSalesByDate(context.Background(), "01-09-2026"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad date, got %v", err)
	}
	if _, err := svc.ListSalesByRange(context.Background(), "2026-09-02", "2026-09-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted range, got %v", err)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService()

	view, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Budi",
		Email:    "Budi@Gudangtoko.local",
		Password: "rahasia1",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if view.Role != domain.RoleUser {
		t.Fatalf("new accounts must start as user, got %s", view.Role)
	}
	if view.Email != "budi@gudangtoko.local" {
		t.Fatalf("email must be normalized, got %s", view.Email)
	}

	if _, err := svc.Authenticate(context.Background(), domain.LoginRequest{Email: "budi@gudangtoko.local", Password: "rahasia1"}); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), domain.LoginRequest{Email: "budi@gudangtoko.local", Password: "salah"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for wrong password, got %v", err)
	}

	_, err = svc.Register(context.Background(), domain.RegisterRequest{Name: "Budi", Email: "budi@gudangtoko.local", Password: "rahasia1"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestPrimaryAdminProtections(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.EnsurePrimaryAdmin(ctx, "owner@gudangtoko.local", "Pemilik", "sangat-rahasia"); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	// Second call is a no-op.
	if err := svc.EnsurePrimaryAdmin(ctx, "other@gudangtoko.local", "Lain", "x"); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}

	owner, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "owner@gudangtoko.local", Password: "sangat-rahasia"})
	if err != nil {
		t.Fatalf("owner login failed: %v", err)
	}
	if owner.Role != domain.RoleSuperAdmin || !owner.PrimaryAdmin {
		t.Fatalf("expected primary superAdmin, got %+v", owner)
	}

	superCtx := WithActor(ctx, domain.Actor{ID: "someone-else", Name: "X", Role: domain.RoleSuperAdmin})
	if err := svc.DeleteUser(superCtx, owner.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("the primary admin must be undeletable, got %v", err)
	}

	if _, err := svc.SetUserRole(adminCtx(), owner.ID, domain.RoleUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("role changes require superAdmin, got %v", err)
	}
}

func TestCreateProductDerivesPrices(t *testing.T) {
	svc := newTestService()

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:              "Sirup Jeruk",
		BatchNumber:       "B-600",
		Quantity:          12,
		UnitCost:          decimal.NewFromInt(10),
		UnitOfMeasurement: "bottle",
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if !product.AverageCost.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected average cost 10, got %s", product.AverageCost)
	}
	if !product.TotalCost.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected total cost 120, got %s", product.TotalCost)
	}
	if !product.SellingPrice.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("expected selling price 11, got %s", product.SellingPrice)
	}

	if _, err := svc.CreateProduct(userCtx(), domain.ProductCreateRequest{
		Name: "Sirup Jeruk", BatchNumber: "B-601", Quantity: 1, UnitCost: decimal.NewFromInt(10),
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for a regular user, got %v", err)
	}
	if _, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Sirup Lain", BatchNumber: "B-600", Quantity: 1, UnitCost: decimal.NewFromInt(10),
	}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate batch error, got %v", err)
	}
}

func TestSalesRangeIncludesDayBoundaries(t *testing.T) {
	repo := memory.New()
	svc := New(repo, cache.NoopReportCache{}, time.Second)
	ctx := context.Background()

	item, err := repo.CreateShopItem(ctx, domain.ShopItem{
		BatchNumber:  "B-700",
		ProductName:  "Kopi Bubuk",
		Quantity:     10,
		SellingPrice: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}

	for _, at := range []time.Time{
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local),
		time.Date(2026, 8, 2, 23, 59, 59, int(999*time.Millisecond), time.Local),
		time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local),
	} {
		if _, err := repo.ApplySale(ctx, domain.Sale{QuantitySold: 1, SoldBy: "Staf", SaleDate: at}, item.ID); err != nil {
			t.Fatalf("apply sale at %s failed: %v", at, err)
		}
	}

	sales, err := svc.ListSalesByRange(ctx, "2026-08-01", "2026-08-02")
	if err != nil {
		t.Fatalf("list sales by range failed: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected the first-instant and last-instant sales only, got %d", len(sales))
	}
}

func TestDayBoundsCoverClockChangeDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	saved := time.Local
	time.Local = loc
	defer func() { time.Local = saved }()

	// 2026-03-08 is a 23-hour day in this zone.
	from, to, err := dayBounds("2026-03-08")
	if err != nil {
		t.Fatalf("dayBounds failed: %v", err)
	}
	if !from.Equal(time.Date(2026, 3, 8, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected start of day: %s", from)
	}
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, loc).Add(-time.Millisecond)
	if !to.Equal(want) {
		t.Fatalf("expected the day to end at %s, got %s", want, to)
	}
}

type recordingCache struct {
	cache.NoopReportCache
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, key string) error {
	c.invalidated = append(c.invalidated, key)
	return nil
}

func TestDeleteSaleInvalidatesItsReportDay(t *testing.T) {
	repo := memory.New()
	reports := &recordingCache{}
	svc := New(repo, reports, time.Second)
	ctx := context.Background()

	item, err := repo.CreateShopItem(ctx, domain.ShopItem{
		BatchNumber:  "B-710",
		ProductName:  "Teh Celup",
		Quantity:     10,
		SellingPrice: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}
	past := time.Date(2026, 7, 15, 10, 0, 0, 0, time.Local)
	sale, err := repo.ApplySale(ctx, domain.Sale{QuantitySold: 2, SoldBy: "Staf", SaleDate: past}, item.ID)
	if err != nil {
		t.Fatalf("apply sale failed: %v", err)
	}

	if err := svc.DeleteSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}

	want := "sales-report:2026-07-15"
	for _, key := range reports.invalidated {
		if key == want {
			return
		}
	}
	t.Fatalf("expected %s to be invalidated, got %v", want, reports.invalidated)
}

func TestUserDeletionPolicy(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	staff, err := svc.Register(ctx, domain.RegisterRequest{Name: "Staf", Email: "staf@gudangtoko.local", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// A regular user cannot delete anyone.
	if err := svc.DeleteUser(userCtx(), staff.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// An admin can.
	if err := svc.DeleteUser(adminCtx(), staff.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}
