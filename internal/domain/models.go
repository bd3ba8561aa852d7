package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a store-side catalog entry. Each batch of stock is tracked as
// its own product row with a running weighted-average cost.
type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	BatchNumber       string          `json:"batch_number"`
	Quantity          int             `json:"quantity"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	ReorderLevel      int             `json:"reorder_level,omitempty"`
	Remark            string          `json:"remark,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name              string          `json:"name"`
	BatchNumber       string          `json:"batch_number"`
	Quantity          int             `json:"quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	ReorderLevel      int             `json:"reorder_level,omitempty"`
	Remark            string          `json:"remark,omitempty"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	ReorderLevel *int             `json:"reorder_level,omitempty"`
	Remark       *string          `json:"remark,omitempty"`
}

// Purchase is an append-only ledger line. AverageCost snapshots the
// product's weighted-average cost immediately after this purchase was
// applied. Adjustment approvals append signed lines (negative Quantity
// reverses a prior purchase).
type Purchase struct {
	ID           string          `json:"id"`
	BatchNumber  string          `json:"batch_number"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	PurchasedBy  string          `json:"purchased_by"`
	Reference    string          `json:"reference,omitempty"`
	PurchaseDate time.Time       `json:"purchase_date"`
}

type PurchaseCreateRequest struct {
	BatchNumber       string          `json:"batch_number"`
	ProductName       string          `json:"product_name"`
	Quantity          int             `json:"quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	PurchasedBy       string          `json:"purchased_by"`
	Reference         string          `json:"reference,omitempty"`
}

// ShopItem is retail-side stock for one batch. BuyingPrice is copied from
// the product's average cost at first transfer.
type ShopItem struct {
	ID                string          `json:"id"`
	BatchNumber       string          `json:"batch_number"`
	ProductName       string          `json:"product_name"`
	Quantity          int             `json:"quantity"`
	BuyingPrice       decimal.Decimal `json:"buying_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	AddedBy           string          `json:"added_by"`
	DateAdded         time.Time       `json:"date_added"`
}

type ShopItemCreateRequest struct {
	BatchNumber       string          `json:"batch_number"`
	ProductName       string          `json:"product_name"`
	Quantity          int             `json:"quantity"`
	BuyingPrice       decimal.Decimal `json:"buying_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	AddedBy           string          `json:"added_by"`
}

type ShopItemUpdateRequest struct {
	ProductName  *string          `json:"product_name,omitempty"`
	Quantity     *int             `json:"quantity,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
}

// Sale is an append-only ledger line. QuantitySold is signed: adjustment
// approvals append a negative reversal line followed by a corrected one.
type Sale struct {
	ID           string          `json:"id"`
	ProductName  string          `json:"product_name"`
	BatchNumber  string          `json:"batch_number"`
	QuantitySold int             `json:"quantity_sold"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	SaleDate     time.Time       `json:"sale_date"`
	SoldBy       string          `json:"sold_by"`
}

type SaleCreateRequest struct {
	ShopItemID   string `json:"shop_item_id"`
	QuantitySold int    `json:"quantity_sold"`
	SoldBy       string `json:"sold_by"`
}

type SaleUpdateRequest struct {
	QuantitySold int `json:"quantity_sold"`
}

// Transfer records a stock movement from the store catalog to the shop.
type Transfer struct {
	ID                string          `json:"id"`
	ProductName       string          `json:"product_name"`
	BatchNumber       string          `json:"batch_number"`
	Quantity          int             `json:"quantity"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	Reference         string          `json:"reference"`
	StoreKeeper       string          `json:"store_keeper"`
	TransferredAt     time.Time       `json:"transferred_at"`
}

type TransferCreateRequest struct {
	ProductName       string          `json:"product_name"`
	BatchNumber       string          `json:"batch_number"`
	Quantity          int             `json:"quantity"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	Reference         string          `json:"reference,omitempty"`
	StoreKeeper       string          `json:"store_keeper"`
}

type AdjustmentType string

const (
	AdjustmentTypeSale     AdjustmentType = "sale"
	AdjustmentTypePurchase AdjustmentType = "purchase"
)

type AdjustmentStatus string

const (
	AdjustmentStatusPending  AdjustmentStatus = "pending"
	AdjustmentStatusApproved AdjustmentStatus = "approved"
	AdjustmentStatusRejected AdjustmentStatus = "rejected"
)

type AdjustmentMode string

const (
	AdjustmentModeRequested AdjustmentMode = "requested"
	AdjustmentModeDirect    AdjustmentMode = "direct"
)

// Adjustment is a correction to a recorded sale or purchase. It is created
// pending and resolved exactly once, to approved or rejected. Quantity is
// the corrected target value; OldQuantity is the value being corrected
// (nil for purchase-type adjustments, where the product's quantity at
// approval time is taken as the value being corrected).
type Adjustment struct {
	ID          string           `json:"id"`
	Type        AdjustmentType   `json:"type"`
	BatchNumber string           `json:"batch_number"`
	Quantity    int              `json:"quantity"`
	OldQuantity *int             `json:"old_quantity,omitempty"`
	Reason      string           `json:"reason"`
	RequestedBy string           `json:"requested_by"`
	ApprovedBy  string           `json:"approved_by,omitempty"`
	Status      AdjustmentStatus `json:"status"`
	Mode        AdjustmentMode   `json:"mode"`
	CreatedAt   time.Time        `json:"created_at"`
}

type AdjustmentCreateRequest struct {
	Type        AdjustmentType `json:"type"`
	BatchNumber string         `json:"batch_number"`
	Quantity    int            `json:"quantity"`
	OldQuantity *int           `json:"old_quantity,omitempty"`
	Reason      string         `json:"reason"`
	RequestedBy string         `json:"requested_by"`
	Mode        AdjustmentMode `json:"mode,omitempty"`
}

type AdjustmentResolveRequest struct {
	ApprovedBy string `json:"approvedBy"`
}

type RequestedProductStatus string

const (
	RequestedProductStatusPending   RequestedProductStatus = "pending"
	RequestedProductStatusPurchased RequestedProductStatus = "purchased"
	RequestedProductStatusFulfilled RequestedProductStatus = "fulfilled"
)

// RequestedProduct is an out-of-stock request raised from the shop floor.
type RequestedProduct struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Quantity    int                    `json:"quantity"`
	Status      RequestedProductStatus `json:"status"`
	RequestedBy string                 `json:"requested_by,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type RequestedProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type RequestedProductUpdateRequest struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Quantity    *int                    `json:"quantity,omitempty"`
	Status      *RequestedProductStatus `json:"status,omitempty"`
}

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superAdmin"
)

// UserAccount is the persistence model for auth credentials. Password holds
// a bcrypt hash, never plain text.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	Password     string
	Role         string
	PrimaryAdmin bool
	CreatedAt    time.Time
}

// UserView is the externally visible projection of a user account.
type UserView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PrimaryAdmin bool      `json:"primary_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User        UserView `json:"user"`
	AccessToken string   `json:"access_token"`
	ExpiresAt   string   `json:"expires_at"`
}

type ProfileUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Actor is the authenticated caller attached to a request context.
type Actor struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PrimaryAdmin bool
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// SalesReportLine aggregates one batch within a daily sales report.
type SalesReportLine struct {
	BatchNumber string          `json:"batch_number"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

type SalesReport struct {
	Date       string            `json:"date"`
	SaleCount  int               `json:"sale_count"`
	UnitsSold  int               `json:"units_sold"`
	GrossTotal decimal.Decimal   `json:"gross_total"`
	Lines      []SalesReportLine `json:"lines"`
}
