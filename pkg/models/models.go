package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyClass distinguishes settlement money from traded assets
type CurrencyClass string

const (
	CurrencyCrypto CurrencyClass = "CRYPTO"
	CurrencyFiat   CurrencyClass = "FIAT"
)

// Currency is immutable reference data; looked up, never mutated, by the engines
type Currency struct {
	Code      string        `json:"code" gorm:"primaryKey" validate:"required,currency_code"`
	Name      string        `json:"name" validate:"required,min=1,max=100"`
	Class     CurrencyClass `json:"class" validate:"required,oneof=CRYPTO FIAT"`
	Precision int           `json:"precision" validate:"min=0,max=18"`
	CreatedAt time.Time     `json:"created_at"`
}

// Wallet holds a user's balance in one currency, split into three buckets.
// Balances are mutated exclusively through the wallet service; available and
// locked never go negative.
type Wallet struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_wallets_user_currency" validate:"required,uuid"`
	CurrencyCode string          `json:"currency_code" gorm:"uniqueIndex:idx_wallets_user_currency" validate:"required,currency_code"`
	Available    decimal.Decimal `json:"available" gorm:"type:decimal(36,18)"`
	Locked       decimal.Decimal `json:"locked" gorm:"type:decimal(36,18)"`
	Pending      decimal.Decimal `json:"pending" gorm:"type:decimal(36,18)"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Total is the only externally meaningful balance
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Locked).Add(w.Pending)
}

// OrderSide is the maker's side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus follows filled vs total except for explicit cancellation
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Tradeable reports whether a trade may still match against the order
func (s OrderStatus) Tradeable() bool {
	return s == OrderStatusOpen || s == OrderStatusPartial
}

// Order is a buy/sell intent posted by a maker. FilledAmount and Status are
// advanced only by the trade engine.
type Order struct {
	ID            uuid.UUID        `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID        uuid.UUID        `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Side          OrderSide        `json:"side" validate:"required,oneof=BUY SELL"`
	AssetCurrency string           `json:"asset_currency" validate:"required,currency_code"`
	QuoteCurrency string           `json:"quote_currency" validate:"required,currency_code"`
	Price         decimal.Decimal  `json:"price" gorm:"type:decimal(36,18)" validate:"required"`
	TotalAmount   decimal.Decimal  `json:"total_amount" gorm:"type:decimal(36,18)" validate:"required"`
	FilledAmount  decimal.Decimal  `json:"filled_amount" gorm:"type:decimal(36,18)"`
	MinLimit      *decimal.Decimal `json:"min_limit,omitempty" gorm:"type:decimal(36,18)"`
	MaxLimit      *decimal.Decimal `json:"max_limit,omitempty" gorm:"type:decimal(36,18)"`
	Status        OrderStatus      `json:"status" gorm:"index" validate:"required,oneof=OPEN PARTIAL COMPLETED CANCELLED"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Remaining is the unfilled capacity of the order
func (o *Order) Remaining() decimal.Decimal {
	return o.TotalAmount.Sub(o.FilledAmount)
}

// TradeStatus is the settlement state of a trade
type TradeStatus string

const (
	TradeStatusPendingPayment TradeStatus = "PENDING_PAYMENT"
	TradeStatusPaid           TradeStatus = "PAID"
	TradeStatusCompleted      TradeStatus = "COMPLETED"
	TradeStatusCancelled      TradeStatus = "CANCELLED"
	TradeStatusDispute        TradeStatus = "DISPUTE"
)

// Terminal reports whether the trade can no longer change state
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCancelled
}

// Trade is a taker matching part of an order. Price is copied from the order
// at match time and immutable thereafter.
type Trade struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	OrderID     uuid.UUID       `json:"order_id" gorm:"type:uuid;index" validate:"required,uuid"`
	BuyerID     uuid.UUID       `json:"buyer_id" gorm:"type:uuid;index" validate:"required,uuid"`
	SellerID    uuid.UUID       `json:"seller_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(36,18)" validate:"required"`
	QuoteAmount decimal.Decimal `json:"quote_amount" gorm:"type:decimal(36,18)" validate:"required"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(36,18)" validate:"required"`
	Status      TradeStatus     `json:"status" gorm:"index" validate:"required,oneof=PENDING_PAYMENT PAID COMPLETED CANCELLED DISPUTE"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// LedgerTransactionType classifies why money moved
type LedgerTransactionType string

const (
	LedgerTxDeposit LedgerTransactionType = "DEPOSIT"
	LedgerTxTrade   LedgerTransactionType = "TRADE"
)

// LedgerTransactionStatus is the posting state of a ledger transaction. Every
// transaction recorded by the core is POSTED; reversals and pending holds
// would introduce further states.
type LedgerTransactionStatus string

const (
	LedgerTxPosted LedgerTransactionStatus = "POSTED"
)

// LedgerTransaction is the header of one balanced double-entry movement
type LedgerTransaction struct {
	ID          uuid.UUID               `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Type        LedgerTransactionType   `json:"type" validate:"required,oneof=DEPOSIT TRADE"`
	Status      LedgerTransactionStatus `json:"status" validate:"required,oneof=POSTED"`
	Description string                  `json:"description" validate:"omitempty,max=500"`
	CreatedAt   time.Time               `json:"created_at"`

	Entries []LedgerEntry `json:"entries,omitempty" gorm:"foreignKey:TransactionID"`
}

// EntryDirection is the side of a ledger entry from the wallet's point of view
type EntryDirection string

const (
	EntryDebit  EntryDirection = "DEBIT"
	EntryCredit EntryDirection = "CREDIT"
)

// LedgerEntry is one signed line of a transaction. The signed amounts of all
// entries under one transaction sum to exactly zero.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	TransactionID uuid.UUID       `json:"transaction_id" gorm:"type:uuid;index" validate:"required,uuid"`
	WalletID      uuid.UUID       `json:"wallet_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(36,18)" validate:"required"`
	BalanceAfter  decimal.Decimal `json:"balance_after" gorm:"type:decimal(36,18)"`
	Direction     EntryDirection  `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	CreatedAt     time.Time       `json:"created_at"`
}
