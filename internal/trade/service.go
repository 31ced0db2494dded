// Package trade matches takers against open orders and drives each trade
// through its settlement state machine:
//
//	PENDING_PAYMENT → PAID → COMPLETED
//	PENDING_PAYMENT | PAID → CANCELLED
//
// COMPLETED and CANCELLED are terminal. Every transition runs inside one
// storage transaction holding an exclusive lock on the trade row (and the
// order row where fill state changes).
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peerex/peerex/internal/database"
	"github.com/peerex/peerex/internal/fee"
	"github.com/peerex/peerex/internal/wallet"
	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/metrics"
	"github.com/peerex/peerex/pkg/models"
)

// Service implements the trade engine
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	wallets *wallet.Service

	// feeAccountID owns the wallets that collect the protocol fee, injected
	// from configuration.
	feeAccountID uuid.UUID
}

// NewService creates a trade service
func NewService(logger *zap.Logger, db *gorm.DB, wallets *wallet.Service, feeAccountID uuid.UUID) *Service {
	return &Service{logger: logger, db: db, wallets: wallets, feeAccountID: feeAccountID}
}

// Create matches the taker against the order's remaining capacity and opens a
// trade in PENDING_PAYMENT. The order row stays locked for the duration, so
// concurrent takers serialize and the fill never overshoots the total.
func (s *Service) Create(ctx context.Context, takerID, orderID uuid.UUID, amount decimal.Decimal) (*models.Trade, error) {
	if !amount.IsPositive() {
		return nil, errs.ErrNonPositiveAmount
	}

	var created *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}

		if !o.Status.Tradeable() {
			return errs.ErrOrderNotAvailable
		}
		if o.UserID == takerID {
			return errs.ErrSelfTrade
		}
		if amount.GreaterThan(o.Remaining()) {
			return errs.ErrAmountExceedsOpen
		}
		if o.MinLimit != nil && amount.LessThan(*o.MinLimit) {
			return errs.ErrAmountBelowMin
		}
		if o.MaxLimit != nil && amount.GreaterThan(*o.MaxLimit) {
			return errs.ErrAmountAboveMax
		}

		// Taker buys when the maker sells, and vice versa.
		buyerID, sellerID := o.UserID, takerID
		if o.Side == models.OrderSideSell {
			buyerID, sellerID = takerID, o.UserID
		}

		now := time.Now()
		t := &models.Trade{
			ID:          uuid.New(),
			OrderID:     o.ID,
			BuyerID:     buyerID,
			SellerID:    sellerID,
			Amount:      amount,
			QuoteAmount: amount.Mul(o.Price),
			Price:       o.Price,
			Status:      models.TradeStatusPendingPayment,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}

		o.FilledAmount = o.FilledAmount.Add(amount)
		if o.FilledAmount.Equal(o.TotalAmount) {
			o.Status = models.OrderStatusCompleted
		} else {
			o.Status = models.OrderStatusPartial
		}
		o.UpdatedAt = now
		if err := tx.Save(o).Error; err != nil {
			return fmt.Errorf("failed to update order fill: %w", err)
		}

		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradeTransitions.WithLabelValues("created").Inc()
	s.logger.Info("Trade created",
		zap.String("trade_id", created.ID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("amount", created.Amount.String()))
	return created, nil
}

// MarkPaid records the buyer's claim of payment; PENDING_PAYMENT → PAID
func (s *Service) MarkPaid(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	var updated *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTradeRow(tx, tradeID)
		if err != nil {
			return err
		}

		if t.BuyerID != userID {
			return errs.ErrNotBuyer
		}
		if t.Status != models.TradeStatusPendingPayment {
			return errs.ErrTradeNotPending
		}

		t.Status = models.TradeStatusPaid
		t.UpdatedAt = time.Now()
		if err := tx.Save(t).Error; err != nil {
			return fmt.Errorf("failed to update trade: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradeTransitions.WithLabelValues("paid").Inc()
	return updated, nil
}

// Release settles a PAID trade: the seller's escrowed amount+fee leaves
// locked, the buyer receives the amount, the fee wallet receives the fee, and
// the trade completes. Only the seller may call.
func (s *Service) Release(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	var updated *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTradeRow(tx, tradeID)
		if err != nil {
			return err
		}

		if t.SellerID != userID {
			return errs.ErrNotSeller
		}
		if t.Status != models.TradeStatusPaid {
			return errs.ErrTradeNotPaid
		}

		var o models.Order
		if err := tx.Where("id = ?", t.OrderID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrOrderNotFound
			}
			return fmt.Errorf("failed to find order: %w", err)
		}

		// The escrow took amount+fee at order creation; settlement drains
		// exactly that, so locked balance returns to its pre-order level.
		feeAmount := fee.Of(t.Amount)
		desc := fmt.Sprintf("Trade %s release", t.ID)
		if err := s.wallets.InTx(tx).Settle(ctx, t.SellerID, t.BuyerID, s.feeAccountID, o.AssetCurrency, t.Amount, feeAmount, desc); err != nil {
			return err
		}

		now := time.Now()
		t.Status = models.TradeStatusCompleted
		t.UpdatedAt = now
		t.CompletedAt = &now
		if err := tx.Save(t).Error; err != nil {
			return fmt.Errorf("failed to update trade: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradeTransitions.WithLabelValues("released").Inc()
	s.logger.Info("Trade released", zap.String("trade_id", tradeID.String()))
	return updated, nil
}

// Cancel reverses a non-terminal trade: the order regains the trade's
// quantity, and for SELL orders the seller's escrow for that quantity is
// unlocked. Either participant may cancel.
func (s *Service) Cancel(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	var updated *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTradeRow(tx, tradeID)
		if err != nil {
			return err
		}

		if t.BuyerID != userID && t.SellerID != userID {
			return errs.ErrNotParticipant
		}
		if t.Status.Terminal() {
			return errs.ErrTradeFinished
		}

		o, err := lockOrderRow(tx, t.OrderID)
		if err != nil {
			return err
		}

		now := time.Now()
		o.FilledAmount = o.FilledAmount.Sub(t.Amount)
		if o.FilledAmount.IsZero() {
			o.Status = models.OrderStatusOpen
		} else {
			o.Status = models.OrderStatusPartial
		}
		o.UpdatedAt = now
		if err := tx.Save(o).Error; err != nil {
			return fmt.Errorf("failed to restore order fill: %w", err)
		}

		if o.Side == models.OrderSideSell {
			escrow := fee.EscrowAmount(t.Amount)
			desc := fmt.Sprintf("Trade %s cancel: escrow unlock", t.ID)
			if err := s.wallets.InTx(tx).Unlock(ctx, t.SellerID, o.AssetCurrency, escrow, desc); err != nil {
				return err
			}
		}

		t.Status = models.TradeStatusCancelled
		t.UpdatedAt = now
		if err := tx.Save(t).Error; err != nil {
			return fmt.Errorf("failed to update trade: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradeTransitions.WithLabelValues("cancelled").Inc()
	s.logger.Info("Trade cancelled", zap.String("trade_id", tradeID.String()))
	return updated, nil
}

// Get returns one trade, visible only to its buyer or seller
func (s *Service) Get(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	var t models.Trade
	if err := s.db.WithContext(ctx).Where("id = ?", tradeID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to find trade: %w", err)
	}
	if t.BuyerID != userID && t.SellerID != userID {
		return nil, errs.ErrNotParticipant
	}
	return &t, nil
}

func lockOrderRow(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := database.ForUpdate(tx).Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &o, nil
}

func lockTradeRow(tx *gorm.DB, tradeID uuid.UUID) (*models.Trade, error) {
	var t models.Trade
	if err := database.ForUpdate(tx).Where("id = ?", tradeID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to lock trade: %w", err)
	}
	return &t, nil
}
