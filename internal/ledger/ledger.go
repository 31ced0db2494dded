// Package ledger records every balance movement as a balanced double-entry
// transaction. Signed entry amounts must sum to exactly zero per transaction,
// verified here before anything is written; a violation aborts the enclosing
// storage transaction.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/metrics"
	"github.com/peerex/peerex/pkg/models"
)

// Line is one leg of a pending ledger transaction. Amount is signed: negative
// for debits, positive for credits. BalanceAfter snapshots the affected bucket
// after the movement.
type Line struct {
	WalletID     uuid.UUID
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Direction    models.EntryDirection
}

// Debit builds a line removing amount (given positive) from a wallet bucket
func Debit(walletID uuid.UUID, amount, balanceAfter decimal.Decimal) Line {
	return Line{
		WalletID:     walletID,
		Amount:       amount.Neg(),
		BalanceAfter: balanceAfter,
		Direction:    models.EntryDebit,
	}
}

// Credit builds a line adding amount to a wallet bucket
func Credit(walletID uuid.UUID, amount, balanceAfter decimal.Decimal) Line {
	return Line{
		WalletID:     walletID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Direction:    models.EntryCredit,
	}
}

// Record writes one transaction header plus its entries inside tx. The caller's
// storage transaction provides atomicity; Record never commits.
func Record(tx *gorm.DB, txType models.LedgerTransactionType, description string, lines ...Line) (*models.LedgerTransaction, error) {
	if len(lines) < 2 {
		return nil, errs.Wrapf(errs.KindInternal, nil, "ledger transaction needs at least two entries, got %d", len(lines))
	}

	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Amount)
	}
	if !sum.IsZero() {
		return nil, fmt.Errorf("recording %s: %w", txType, errs.ErrLedgerImbalance)
	}

	now := time.Now()
	header := &models.LedgerTransaction{
		ID:          uuid.New(),
		Type:        txType,
		Status:      models.LedgerTxPosted,
		Description: description,
		CreatedAt:   now,
	}
	if err := tx.Create(header).Error; err != nil {
		return nil, fmt.Errorf("failed to create ledger transaction: %w", err)
	}

	for _, line := range lines {
		entry := &models.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: header.ID,
			WalletID:      line.WalletID,
			Amount:        line.Amount,
			BalanceAfter:  line.BalanceAfter,
			Direction:     line.Direction,
			CreatedAt:     now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return nil, fmt.Errorf("failed to create ledger entry: %w", err)
		}
	}

	metrics.LedgerTransactions.WithLabelValues(string(txType)).Inc()
	return header, nil
}
