// Package order implements order creation with sell-side escrow. A SELL order
// locks quantity * (1 + fee rate) of the asset currency from the maker before
// the order exists; if anything fails the whole operation rolls back and no
// order, balance change, or ledger entry survives.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peerex/peerex/internal/currency"
	"github.com/peerex/peerex/internal/fee"
	"github.com/peerex/peerex/internal/wallet"
	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/metrics"
	"github.com/peerex/peerex/pkg/models"
)

// CreateInput carries the validated parameters for a new order
type CreateInput struct {
	Side          models.OrderSide
	AssetCurrency string
	QuoteCurrency string
	Price         decimal.Decimal
	TotalAmount   decimal.Decimal
	MinLimit      *decimal.Decimal
	MaxLimit      *decimal.Decimal
}

// Service implements the order engine
type Service struct {
	logger     *zap.Logger
	db         *gorm.DB
	currencies *currency.Service
	wallets    *wallet.Service
}

// NewService creates an order service
func NewService(logger *zap.Logger, db *gorm.DB, currencies *currency.Service, wallets *wallet.Service) *Service {
	return &Service{logger: logger, db: db, currencies: currencies, wallets: wallets}
}

// Create validates the currency pair, escrows the maker's funds for SELL
// orders, and persists the order. All-or-nothing: a failed escrow leaves no
// order and no ledger entry behind.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.Order, error) {
	if !in.Price.IsPositive() || !in.TotalAmount.IsPositive() {
		return nil, errs.ErrNonPositiveAmount
	}
	if in.Side != models.OrderSideBuy && in.Side != models.OrderSideSell {
		return nil, errs.New(errs.KindConflict, "Invalid order side")
	}
	if in.MinLimit != nil && !in.MinLimit.IsPositive() {
		return nil, errs.ErrNonPositiveAmount
	}
	if in.MinLimit != nil && in.MaxLimit != nil && in.MinLimit.GreaterThan(*in.MaxLimit) {
		return nil, errs.New(errs.KindInvalidAmount, "Minimum limit exceeds maximum limit")
	}

	// Currency reference data is immutable, so validation can precede the
	// storage transaction.
	asset, err := s.currencies.Get(ctx, in.AssetCurrency)
	if err != nil {
		return nil, errs.ErrInvalidAssetCurrency
	}
	if asset.Class != models.CurrencyCrypto {
		return nil, errs.ErrInvalidAssetCurrency
	}
	quote, err := s.currencies.Get(ctx, in.QuoteCurrency)
	if err != nil {
		return nil, errs.ErrInvalidQuoteCurrency
	}
	if quote.Class != models.CurrencyFiat {
		return nil, errs.ErrInvalidQuoteCurrency
	}

	var created *models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Side == models.OrderSideSell {
			lockAmount := fee.EscrowAmount(in.TotalAmount)
			desc := fmt.Sprintf("Order escrow lock: %s %s", in.TotalAmount, in.AssetCurrency)
			if err := s.wallets.InTx(tx).Lock(ctx, ownerID, in.AssetCurrency, lockAmount, desc); err != nil {
				return err
			}
		}

		now := time.Now()
		o := &models.Order{
			ID:            uuid.New(),
			UserID:        ownerID,
			Side:          in.Side,
			AssetCurrency: in.AssetCurrency,
			QuoteCurrency: in.QuoteCurrency,
			Price:         in.Price,
			TotalAmount:   in.TotalAmount,
			FilledAmount:  decimal.Zero,
			MinLimit:      in.MinLimit,
			MaxLimit:      in.MaxLimit,
			Status:        models.OrderStatusOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(created.Side)).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", created.ID.String()),
		zap.String("side", string(created.Side)),
		zap.String("asset", created.AssetCurrency),
		zap.String("amount", created.TotalAmount.String()))
	return created, nil
}

// Get returns one order by id
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		if errs.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &o, nil
}

// ListOpen returns tradeable (OPEN or PARTIAL) orders, newest first
func (s *Service) ListOpen(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []models.OrderStatus{models.OrderStatusOpen, models.OrderStatusPartial}).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
