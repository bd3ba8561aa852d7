package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"gudangtoko/backend/internal/domain"
	"gudangtoko/backend/internal/store"
	"gudangtoko/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates all tables if they do not exist. Idempotent; run at
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const productColumns = `id, name, batch_number, quantity, average_cost, total_cost, selling_price, unit_of_measurement, reorder_level, remark, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.BatchNumber, &p.Quantity, &p.AverageCost, &p.TotalCost,
		&p.SellingPrice, &p.UnitOfMeasurement, &p.ReorderLevel, &p.Remark, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.BatchNumber == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Name, product.BatchNumber, product.Quantity, product.AverageCost, product.TotalCost,
		product.SellingPrice, product.UnitOfMeasurement, product.ReorderLevel, product.Remark, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: batch %s", store.ErrDuplicate, product.BatchNumber)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
}

func (s *Store) ListProductsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at
	`, from, to)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBatch(ctx context.Context, batchNumber string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE batch_number = $1`, batchNumber)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	renamed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		product.Name = name
		renamed = true
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

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, selling_price = $3, reorder_level = $4, remark = $5, updated_at = $6
		WHERE id = $1
	`, product.ID, product.Name, product.SellingPrice, product.ReorderLevel, product.Remark, product.UpdatedAt); err != nil {
		return nil, err
	}

	// Renames follow the stock into the shop so both locations list the
	// product under one name. Ledger lines keep their snapshots.
	if renamed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE shop_items SET product_name = $2 WHERE batch_number = $1
		`, product.BatchNumber, product.Name); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ApplyPurchase(ctx context.Context, purchase domain.Purchase, unitOfMeasurement string) (*domain.Purchase, error) {
	if purchase.Quantity <= 0 || purchase.UnitCost.Sign() <= 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.PurchaseDate.IsZero() {
		purchase.PurchaseDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE batch_number = $1 FOR UPDATE`, purchase.BatchNumber)
	product, err := scanProduct(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
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
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, product.ID, product.Name, product.BatchNumber, product.Quantity, product.AverageCost, product.TotalCost,
			product.SellingPrice, product.UnitOfMeasurement, product.ReorderLevel, product.Remark, product.CreatedAt, product.UpdatedAt); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		product.AverageCost = domain.WeightedAverageCost(product.TotalCost, product.Quantity, purchase.Quantity, purchase.UnitCost)
		product.Quantity += purchase.Quantity
		product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
		product.SellingPrice = domain.SellingPriceFor(product.AverageCost)
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = $2, average_cost = $3, total_cost = $4, selling_price = $5, updated_at = $6
			WHERE id = $1
		`, product.ID, product.Quantity, product.AverageCost, product.TotalCost, product.SellingPrice, now); err != nil {
			return nil, err
		}
	}

	purchase.AverageCost = product.AverageCost
	purchase.TotalCost = purchase.UnitCost.Mul(decimal.NewFromInt(int64(purchase.Quantity)))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (id, batch_number, product_name, quantity, unit_cost, average_cost, total_cost, purchased_by, reference, purchase_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.BatchNumber, purchase.ProductName, purchase.Quantity, purchase.UnitCost,
		purchase.AverageCost, purchase.TotalCost, purchase.PurchasedBy, purchase.Reference, purchase.PurchaseDate); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) RollbackPurchase(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var batchNumber string
	var quantity int
	err = tx.QueryRowContext(ctx, `SELECT batch_number, quantity FROM purchases WHERE id = $1`, id).Scan(&batchNumber, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE batch_number = $1 FOR UPDATE`, batchNumber)
	product, err := scanProduct(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// The catalog row is already gone; only the ledger line remains.
	case err != nil:
		return err
	default:
		product.Quantity -= quantity
		if product.Quantity <= 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID); err != nil {
				return err
			}
		} else {
			product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET quantity = $2, total_cost = $3, updated_at = $4 WHERE id = $1
			`, product.ID, product.Quantity, product.TotalCost, time.Now().UTC()); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const purchaseColumns = `id, batch_number, product_name, quantity, unit_cost, average_cost, total_cost, purchased_by, reference, purchase_date`

func scanPurchase(row rowScanner) (domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(&p.ID, &p.BatchNumber, &p.ProductName, &p.Quantity, &p.UnitCost,
		&p.AverageCost, &p.TotalCost, &p.PurchasedBy, &p.Reference, &p.PurchaseDate)
	return p, err
}

func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchases(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases`
	args := []any{}
	conditions := []string{}
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("purchase_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("purchase_date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY purchase_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) ApplyTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE batch_number = $1 FOR UPDATE`, transfer.BatchNumber)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product not found in store", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if transfer.Quantity > product.Quantity {
		return nil, fmt.Errorf("%w: only %d available in store", store.ErrInsufficientStock, product.Quantity)
	}

	now := time.Now().UTC()
	product.Quantity -= transfer.Quantity
	product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = $2, total_cost = $3, updated_at = $4 WHERE id = $1
	`, product.ID, product.Quantity, product.TotalCost, now); err != nil {
		return nil, err
	}

	var shopItemID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM shop_items WHERE batch_number = $1 FOR UPDATE`, transfer.BatchNumber).Scan(&shopItemID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shop_items (id, batch_number, product_name, quantity, buying_price, selling_price, unit_of_measurement, added_by, date_added)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, xid.New("shop"), transfer.BatchNumber, transfer.ProductName, transfer.Quantity, product.AverageCost,
			transfer.SellingPrice, transfer.UnitOfMeasurement, transfer.StoreKeeper, now); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE shop_items SET quantity = quantity + $2 WHERE id = $1
		`, shopItemID, transfer.Quantity); err != nil {
			return nil, err
		}
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("tr")
	}
	if transfer.TransferredAt.IsZero() {
		transfer.TransferredAt = now
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (id, product_name, batch_number, quantity, selling_price, unit_of_measurement, reference, store_keeper, transferred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, transfer.ID, transfer.ProductName, transfer.BatchNumber, transfer.Quantity, transfer.SellingPrice,
		transfer.UnitOfMeasurement, transfer.Reference, transfer.StoreKeeper, transfer.TransferredAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const transferColumns = `id, product_name, batch_number, quantity, selling_price, unit_of_measurement, reference, store_keeper, transferred_at`

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(&t.ID, &t.ProductName, &t.BatchNumber, &t.Quantity, &t.SellingPrice,
		&t.UnitOfMeasurement, &t.Reference, &t.StoreKeeper, &t.TransferredAt)
	return t, err
}

func (s *Store) ListTransfers(ctx context.Context) ([]domain.Transfer, error) {
	return s.queryTransfers(ctx, `SELECT `+transferColumns+` FROM transfers ORDER BY transferred_at DESC`)
}

func (s *Store) ListTransfersByBatch(ctx context.Context, batchNumber string) ([]domain.Transfer, error) {
	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+` FROM transfers
		WHERE batch_number = $1
		ORDER BY transferred_at DESC
	`, batchNumber)
}

func (s *Store) queryTransfers(ctx context.Context, query string, args ...any) ([]domain.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, 32)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

const shopItemColumns = `id, batch_number, product_name, quantity, buying_price, selling_price, unit_of_measurement, added_by, date_added`

func scanShopItem(row rowScanner) (domain.ShopItem, error) {
	var item domain.ShopItem
	err := row.Scan(&item.ID, &item.BatchNumber, &item.ProductName, &item.Quantity, &item.BuyingPrice,
		&item.SellingPrice, &item.UnitOfMeasurement, &item.AddedBy, &item.DateAdded)
	return item, err
}

func (s *Store) CreateShopItem(ctx context.Context, item domain.ShopItem) (*domain.ShopItem, error) {
	if item.BatchNumber == "" || item.ProductName == "" || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("shop")
	}
	if item.DateAdded.IsZero() {
		item.DateAdded = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shop_items (`+shopItemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.ID, item.BatchNumber, item.ProductName, item.Quantity, item.BuyingPrice,
		item.SellingPrice, item.UnitOfMeasurement, item.AddedBy, item.DateAdded)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: batch %s", store.ErrDuplicate, item.BatchNumber)
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListShopItems(ctx context.Context) ([]domain.ShopItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items ORDER BY product_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ShopItem, 0, 64)
	for rows.Next() {
		item, err := scanShopItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetShopItemByID(ctx context.Context, id string) (*domain.ShopItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1`, id)
	item, err := scanShopItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateShopItem(ctx context.Context, id string, req domain.ShopItemUpdateRequest) (*domain.ShopItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1 FOR UPDATE`, id)
	item, err := scanShopItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
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

	// An explicit update to zero retires the shop entry.
	if req.Quantity != nil && item.Quantity == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM shop_items WHERE id = $1`, id); err != nil {
			return nil, err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE shop_items SET product_name = $2, quantity = $3, selling_price = $4 WHERE id = $1
		`, id, item.ProductName, item.Quantity, item.SellingPrice); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteShopItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ApplySale(ctx context.Context, sale domain.Sale, shopItemID string) (*domain.Sale, error) {
	if sale.QuantitySold <= 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1 FOR UPDATE`, shopItemID)
	item, err := scanShopItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
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
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, product_name, batch_number, quantity_sold, selling_price, sale_date, sold_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.ProductName, sale.BatchNumber, sale.QuantitySold, sale.SellingPrice, sale.SaleDate, sale.SoldBy); err != nil {
		return nil, err
	}

	remaining := item.Quantity - sale.QuantitySold
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM shop_items WHERE id = $1`, item.ID); err != nil {
			return nil, err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE shop_items SET quantity = $2 WHERE id = $1`, item.ID, remaining); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, product_name, batch_number, quantity_sold, selling_price, sale_date, sold_by`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.ProductName, &sale.BatchNumber, &sale.QuantitySold,
		&sale.SellingPrice, &sale.SaleDate, &sale.SoldBy)
	return sale, err
}

func (s *Store) EditSaleQuantity(ctx context.Context, id string, newQuantity int) (*domain.Sale, error) {
	if newQuantity <= 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	row = tx.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE batch_number = $1 FOR UPDATE`, sale.BatchNumber)
	item, err := scanShopItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
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
	if _, err := tx.ExecContext(ctx, `UPDATE shop_items SET quantity = $2 WHERE id = $1`, item.ID, item.Quantity); err != nil {
		return nil, err
	}

	sale.QuantitySold = newQuantity
	if _, err := tx.ExecContext(ctx, `UPDATE sales SET quantity_sold = $2 WHERE id = $1`, id, newQuantity); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY sale_date DESC`)
}

func (s *Store) ListSalesByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE sale_date BETWEEN $1 AND $2
		ORDER BY sale_date DESC
	`, from, to)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

const adjustmentColumns = `id, type, batch_number, quantity, old_quantity, reason, requested_by, approved_by, status, mode, created_at`

func scanAdjustment(row rowScanner) (domain.Adjustment, error) {
	var adj domain.Adjustment
	var oldQty sql.NullInt64
	err := row.Scan(&adj.ID, &adj.Type, &adj.BatchNumber, &adj.Quantity, &oldQty,
		&adj.Reason, &adj.RequestedBy, &adj.ApprovedBy, &adj.Status, &adj.Mode, &adj.CreatedAt)
	if oldQty.Valid {
		v := int(oldQty.Int64)
		adj.OldQuantity = &v
	}
	return adj, err
}

func (s *Store) CreateAdjustment(ctx context.Context, adjustment domain.Adjustment) (*domain.Adjustment, error) {
	if adjustment.ID == "" {
		adjustment.ID = xid.New("adj")
	}
	if adjustment.CreatedAt.IsZero() {
		adjustment.CreatedAt = time.Now().UTC()
	}
	adjustment.Status = domain.AdjustmentStatusPending

	var oldQty sql.NullInt64
	if adjustment.OldQuantity != nil {
		oldQty = sql.NullInt64{Int64: int64(*adjustment.OldQuantity), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments (`+adjustmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, adjustment.ID, adjustment.Type, adjustment.BatchNumber, adjustment.Quantity, oldQty,
		adjustment.Reason, adjustment.RequestedBy, adjustment.ApprovedBy, adjustment.Status, adjustment.Mode, adjustment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &adjustment, nil
}

func (s *Store) ListAdjustments(ctx context.Context) ([]domain.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adjustmentColumns+` FROM adjustments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjustments := make([]domain.Adjustment, 0, 32)
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func (s *Store) ApproveAdjustment(ctx context.Context, id string, approver string, at time.Time) (*domain.Adjustment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+adjustmentColumns+` FROM adjustments WHERE id = $1 FOR UPDATE`, id)
	adjustment, err := scanAdjustment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invalid adjustment", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if adjustment.Status != domain.AdjustmentStatusPending {
		return nil, fmt.Errorf("%w: invalid adjustment", store.ErrAlreadyProcessed)
	}

	row = tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE batch_number = $1 FOR UPDATE`, adjustment.BatchNumber)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product not found in store", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	switch adjustment.Type {
	case domain.AdjustmentTypeSale:
		row = tx.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE batch_number = $1 FOR UPDATE`, adjustment.BatchNumber)
		item, err := scanShopItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shop product not found", store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if item.Quantity < adjustment.Quantity {
			return nil, fmt.Errorf("%w: not enough stock to reverse the sale", store.ErrInsufficientStock)
		}

		oldQty := 0
		if adjustment.OldQuantity != nil {
			oldQty = *adjustment.OldQuantity
		}
		for _, qty := range []int{-oldQty, adjustment.Quantity} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sales (id, product_name, batch_number, quantity_sold, selling_price, sale_date, sold_by)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, xid.New("sale"), item.ProductName, item.BatchNumber, qty, item.SellingPrice, at, approver); err != nil {
				return nil, err
			}
		}

		if oldQty > adjustment.Quantity {
			if _, err := tx.ExecContext(ctx, `
				UPDATE shop_items SET quantity = quantity + $2 WHERE id = $1
			`, item.ID, oldQty-adjustment.Quantity); err != nil {
				return nil, err
			}
		}

	case domain.AdjustmentTypePurchase:
		oldQty := product.Quantity
		if adjustment.OldQuantity != nil {
			oldQty = *adjustment.OldQuantity
		}
		for _, qty := range []int{-oldQty, adjustment.Quantity} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO purchases (id, batch_number, product_name, quantity, unit_cost, average_cost, total_cost, purchased_by, reference, purchase_date)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'',$9)
			`, xid.New("pur"), product.BatchNumber, product.Name, qty, product.AverageCost,
				product.AverageCost, domain.TotalCostFor(qty, product.AverageCost), approver, at); err != nil {
				return nil, err
			}
		}

		// The adjustment's target quantity is authoritative, not additive.
		product.Quantity = adjustment.Quantity
		product.TotalCost = domain.TotalCostFor(product.Quantity, product.AverageCost)
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = $2, total_cost = $3, updated_at = $4 WHERE id = $1
		`, product.ID, product.Quantity, product.TotalCost, at); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, adjustment.Type)
	}

	adjustment.Status = domain.AdjustmentStatusApproved
	adjustment.ApprovedBy = approver
	if _, err := tx.ExecContext(ctx, `
		UPDATE adjustments SET status = $2, approved_by = $3 WHERE id = $1
	`, id, adjustment.Status, adjustment.ApprovedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &adjustment, nil
}

func (s *Store) RejectAdjustment(ctx context.Context, id string, approver string) (*domain.Adjustment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+adjustmentColumns+` FROM adjustments WHERE id = $1 FOR UPDATE`, id)
	adjustment, err := scanAdjustment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: not found or already processed", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if adjustment.Status != domain.AdjustmentStatusPending {
		return nil, fmt.Errorf("%w: not found or already processed", store.ErrAlreadyProcessed)
	}

	adjustment.Status = domain.AdjustmentStatusRejected
	adjustment.ApprovedBy = approver
	if _, err := tx.ExecContext(ctx, `
		UPDATE adjustments SET status = $2, approved_by = $3 WHERE id = $1
	`, id, adjustment.Status, adjustment.ApprovedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &adjustment, nil
}

const requestedColumns = `id, name, description, quantity, status, requested_by, created_at`

func scanRequested(row rowScanner) (domain.RequestedProduct, error) {
	var r domain.RequestedProduct
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Quantity, &r.Status, &r.RequestedBy, &r.CreatedAt)
	return r, err
}

func (s *Store) CreateRequestedProduct(ctx context.Context, req domain.RequestedProduct) (*domain.RequestedProduct, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requested_products (`+requestedColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, req.Name, req.Description, req.Quantity, req.Status, req.RequestedBy, req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) ListRequestedProducts(ctx context.Context) ([]domain.RequestedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+requestedColumns+` FROM requested_products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]domain.RequestedProduct, 0, 32)
	for rows.Next() {
		r, err := scanRequested(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *Store) UpdateRequestedProduct(ctx context.Context, id string, req domain.RequestedProductUpdateRequest) (*domain.RequestedProduct, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+requestedColumns+` FROM requested_products WHERE id = $1 FOR UPDATE`, id)
	existing, err := scanRequested(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
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

	if _, err := tx.ExecContext(ctx, `
		UPDATE requested_products SET name = $2, description = $3, quantity = $4, status = $5 WHERE id = $1
	`, id, existing.Name, existing.Description, existing.Quantity, existing.Status); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Store) DeleteRequestedProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM requested_products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const userColumns = `id, name, email, password, role, primary_admin, created_at`

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.PrimaryAdmin, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Email == "" || user.Name == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Name, user.Email, user.Password, user.Role, user.PrimaryAdmin, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = $2, email = $3, password = $4, role = $5, primary_admin = $6 WHERE id = $1
	`, user.ID, user.Name, user.Email, user.Password, user.Role, user.PrimaryAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorName, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorName, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
