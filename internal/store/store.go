package store

import (
	"context"
	"errors"
	"time"

	"gudangtoko/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrDuplicate         = errors.New("already exists")
)

// Repository is the persistence boundary. Methods that move stock between
// rows (ApplyPurchase, RollbackPurchase, ApplyTransfer, ApplySale,
// EditSaleQuantity, ApproveAdjustment) are atomic: implementations must
// apply all writes or none.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBatch(ctx context.Context, batchNumber string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ApplyPurchase(ctx context.Context, purchase domain.Purchase, unitOfMeasurement string) (*domain.Purchase, error)
	RollbackPurchase(ctx context.Context, id string) error
	GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Purchase, error)

	ApplyTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	DeleteTransfer(ctx context.Context, id string) error
	ListTransfers(ctx context.Context) ([]domain.Transfer, error)
	ListTransfersByBatch(ctx context.Context, batchNumber string) ([]domain.Transfer, error)

	CreateShopItem(ctx context.Context, item domain.ShopItem) (*domain.ShopItem, error)
	ListShopItems(ctx context.Context) ([]domain.ShopItem, error)
	GetShopItemByID(ctx context.Context, id string) (*domain.ShopItem, error)
	UpdateShopItem(ctx context.Context, id string, req domain.ShopItemUpdateRequest) (*domain.ShopItem, error)
	DeleteShopItem(ctx context.Context, id string) error

	ApplySale(ctx context.Context, sale domain.Sale, shopItemID string) (*domain.Sale, error)
	EditSaleQuantity(ctx context.Context, id string, newQuantity int) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)

	CreateAdjustment(ctx context.Context, adjustment domain.Adjustment) (*domain.Adjustment, error)
	ListAdjustments(ctx context.Context) ([]domain.Adjustment, error)
	ApproveAdjustment(ctx context.Context, id string, approver string, at time.Time) (*domain.Adjustment, error)
	RejectAdjustment(ctx context.Context, id string, approver string) (*domain.Adjustment, error)

	CreateRequestedProduct(ctx context.Context, req domain.RequestedProduct) (*domain.RequestedProduct, error)
	ListRequestedProducts(ctx context.Context) ([]domain.RequestedProduct, error)
	UpdateRequestedProduct(ctx context.Context, id string, req domain.RequestedProductUpdateRequest) (*domain.RequestedProduct, error)
	DeleteRequestedProduct(ctx context.Context, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
