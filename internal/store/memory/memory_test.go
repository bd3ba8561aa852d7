package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gudangtoko/backend/internal/domain"
	"gudangtoko/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, batch string, name string, qty int, cost int64) domain.Product {
	t.Helper()
	created, err := s.CreateProduct(context.Background(), domain.Product{
		Name:        name,
		BatchNumber: batch,
		Quantity:    qty,
		AverageCost: decimal.NewFromInt(cost),
		TotalCost:   decimal.NewFromInt(cost * int64(qty)),
	})
	if err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
	return *created
}

func TestCreateProductRejectsDuplicateBatch(t *testing.T) {
	s := New()
	seedProduct(t, s, "B-1", "Gula", 5, 3)

	_, err := s.CreateProduct(context.Background(), domain.Product{Name: "Gula Lain", BatchNumber: "B-1"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate batch error, got %v", err)
	}
}

func TestRenamePropagatesToShopEntry(t *testing.T) {
	s := New()
	ctx := context.Background()
	product := seedProduct(t, s, "B-2", "Mie Instan", 10, 2)

	if _, err := s.CreateShopItem(ctx, domain.ShopItem{
		BatchNumber:  "B-2",
		ProductName:  "Mie Instan",
		Quantity:     4,
		SellingPrice: decimal.NewFromInt(3),
	}); err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}

	newName := "Mie Goreng Instan"
	if _, err := s.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Name: &newName}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	items, _ := s.ListShopItems(ctx)
	if len(items) != 1 || items[0].ProductName != newName {
		t.Fatalf("expected rename to reach the shop entry, got %+v", items)
	}
}

func TestUpdateShopItemToZeroRetiresEntry(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateShopItem(ctx, domain.ShopItem{
		BatchNumber:  "B-3",
		ProductName:  "Kopi",
		Quantity:     4,
		SellingPrice: decimal.NewFromInt(6),
	})
	if err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}

	zero := 0
	if _, err := s.UpdateShopItem(ctx, created.ID, domain.ShopItemUpdateRequest{Quantity: &zero}); err != nil {
		t.Fatalf("update to zero failed: %v", err)
	}

	items, _ := s.ListShopItems(ctx)
	if len(items) != 0 {
		t.Fatalf("expected the entry to be removed, got %+v", items)
	}

	negative := -1
	created, err = s.CreateShopItem(ctx, domain.ShopItem{BatchNumber: "B-4", ProductName: "Teh", Quantity: 2, SellingPrice: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}
	if _, err := s.UpdateShopItem(ctx, created.ID, domain.ShopItemUpdateRequest{Quantity: &negative}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative quantity, got %v", err)
	}
}

func TestDeleteSaleLeavesShopStockAlone(t *testing.T) {
	s := New()
	ctx := context.Background()

	item, err := s.CreateShopItem(ctx, domain.ShopItem{
		BatchNumber:  "B-5",
		ProductName:  "Sabun",
		Quantity:     10,
		SellingPrice: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create shop item failed: %v", err)
	}

	sale, err := s.ApplySale(ctx, domain.Sale{QuantitySold: 4, SoldBy: "Staf"}, item.ID)
	if err != nil {
		t.Fatalf("apply sale failed: %v", err)
	}
	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}

	remaining, err := s.GetShopItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get shop item failed: %v", err)
	}
	if remaining.Quantity != 6 {
		t.Fatalf("deleting a sale must not restore stock, got %d", remaining.Quantity)
	}
}

func TestNewSeededProvidesUsableAccounts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 seed users, got %d", len(users))
	}

	var sawPrimary bool
	for _, u := range users {
		if u.PrimaryAdmin && u.Role == domain.RoleSuperAdmin {
			sawPrimary = true
		}
		if u.Password == "" || u.Password[0] != '$' {
			t.Fatalf("seed passwords must be bcrypt hashes")
		}
	}
	if !sawPrimary {
		t.Fatalf("expected a primary superAdmin among the seeds")
	}

	products, _ := s.ListProducts(ctx)
	if len(products) == 0 {
		t.Fatalf("expected seed products")
	}
	for _, p := range products {
		if !p.TotalCost.Equal(p.AverageCost.Mul(decimal.NewFromInt(int64(p.Quantity)))) {
			t.Fatalf("seed product %s violates the cost invariant", p.BatchNumber)
		}
	}
}
