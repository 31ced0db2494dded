// Package wallet is the single mutation path for balances. Every operation
// that reads then writes a wallet runs inside one storage transaction that
// first takes an exclusive row lock on each wallet it will touch, re-reads it
// under the lock, and appends a balanced ledger transaction before commit.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peerex/peerex/internal/database"
	"github.com/peerex/peerex/internal/ledger"
	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/metrics"
	"github.com/peerex/peerex/pkg/models"
)

// WalletView is a wallet with its computed total, for listings
type WalletView struct {
	Wallet models.Wallet   `json:"wallet"`
	Total  decimal.Decimal `json:"total"`
}

// EntryView is a ledger entry joined with its transaction header
type EntryView struct {
	Entry       models.LedgerEntry       `json:"entry"`
	Transaction models.LedgerTransaction `json:"transaction"`
	Currency    string                   `json:"currency"`
}

// Service implements the wallet store
type Service struct {
	logger *zap.Logger
	db     *gorm.DB

	// systemAccountID owns the treasury wallets deposits are funded from
	systemAccountID uuid.UUID
}

// NewService creates a wallet service. systemAccountID is the injected system
// account that funds deposits and collects fees.
func NewService(logger *zap.Logger, db *gorm.DB, systemAccountID uuid.UUID) *Service {
	return &Service{logger: logger, db: db, systemAccountID: systemAccountID}
}

// InTx returns a view of the service bound to an enclosing transaction, so
// the order and trade engines can compose wallet mutations with their own
// writes atomically.
func (s *Service) InTx(tx *gorm.DB) *Service {
	return &Service{logger: s.logger, db: tx, systemAccountID: s.systemAccountID}
}

// SystemAccountID returns the injected system account id
func (s *Service) SystemAccountID() uuid.UUID {
	return s.systemAccountID
}

// Create creates the (user, currency) wallet with zero balances
func (s *Service) Create(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND currency_code = ?", userID, currency).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check wallet: %w", err)
	}
	if count > 0 {
		return nil, errs.ErrWalletExists
	}

	now := time.Now()
	w := &models.Wallet{
		ID:           uuid.New(),
		UserID:       userID,
		CurrencyCode: currency,
		Available:    decimal.Zero,
		Locked:       decimal.Zero,
		Pending:      decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return w, nil
}

// Get returns the user's wallet in the given currency
func (s *Service) Get(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency_code = ?", userID, currency).
		First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return &w, nil
}

// List returns all of the user's wallets with computed totals, ordered by currency
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*WalletView, error) {
	var wallets []models.Wallet
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("currency_code ASC").
		Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	views := make([]*WalletView, 0, len(wallets))
	for i := range wallets {
		views = append(views, &WalletView{Wallet: wallets[i], Total: wallets[i].Total()})
	}
	return views, nil
}

// Lock moves amount from available to locked on the user's wallet and records
// the escrow in the ledger. Fails with insufficient funds when available is
// short; nothing is written in that case.
func (s *Service) Lock(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return errs.ErrNonPositiveAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWalletRow(tx, userID, currency)
		if err != nil {
			return err
		}

		if w.Available.LessThan(amount) {
			metrics.InsufficientFunds.Inc()
			return errs.ErrInsufficientFunds
		}

		w.Available = w.Available.Sub(amount)
		w.Locked = w.Locked.Add(amount)
		w.UpdatedAt = time.Now()
		if err := tx.Save(w).Error; err != nil {
			return fmt.Errorf("failed to save wallet: %w", err)
		}

		_, err = ledger.Record(tx, models.LedgerTxTrade, description,
			ledger.Debit(w.ID, amount, w.Available),
			ledger.Credit(w.ID, amount, w.Locked),
		)
		return err
	})
}

// Unlock is the reverse of Lock: locked back to available, with reversing
// ledger entries.
func (s *Service) Unlock(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return errs.ErrNonPositiveAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWalletRow(tx, userID, currency)
		if err != nil {
			return err
		}

		if w.Locked.LessThan(amount) {
			return errs.ErrInsufficientLocked
		}

		w.Locked = w.Locked.Sub(amount)
		w.Available = w.Available.Add(amount)
		w.UpdatedAt = time.Now()
		if err := tx.Save(w).Error; err != nil {
			return fmt.Errorf("failed to save wallet: %w", err)
		}

		_, err = ledger.Record(tx, models.LedgerTxTrade, description,
			ledger.Debit(w.ID, amount, w.Locked),
			ledger.Credit(w.ID, amount, w.Available),
		)
		return err
	})
}

// Settle atomically moves a completed trade's funds: amount+fee leaves the
// seller's locked balance, amount lands in the buyer's available balance, fee
// lands in the fee wallet. The three rows are locked in ascending wallet id
// order and the movement is recorded as one three-entry ledger transaction.
func (s *Service) Settle(ctx context.Context, sellerID, buyerID, feeAccountID uuid.UUID, currency string, amount, feeAmount decimal.Decimal, description string) error {
	if !amount.IsPositive() || feeAmount.IsNegative() {
		return errs.ErrNonPositiveAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets, err := s.lockWalletRows(tx, currency, sellerID, buyerID, feeAccountID)
		if err != nil {
			return err
		}
		seller, buyer, feeWallet := wallets[sellerID], wallets[buyerID], wallets[feeAccountID]

		total := amount.Add(feeAmount)
		if seller.Locked.LessThan(total) {
			return errs.ErrInsufficientLocked
		}

		now := time.Now()
		seller.Locked = seller.Locked.Sub(total)
		buyer.Available = buyer.Available.Add(amount)
		feeWallet.Available = feeWallet.Available.Add(feeAmount)
		for _, w := range []*models.Wallet{seller, buyer, feeWallet} {
			w.UpdatedAt = now
			if err := tx.Save(w).Error; err != nil {
				return fmt.Errorf("failed to save wallet: %w", err)
			}
		}

		_, err = ledger.Record(tx, models.LedgerTxTrade, description,
			ledger.Debit(seller.ID, total, seller.Locked),
			ledger.Credit(buyer.ID, amount, buyer.Available),
			ledger.Credit(feeWallet.ID, feeAmount, feeWallet.Available),
		)
		return err
	})
}

// Deposit credits the user's available balance, funded from the system
// treasury wallet so the ledger transaction stays balanced.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return errs.ErrNonPositiveAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets, err := s.lockWalletRows(tx, currency, s.systemAccountID, userID)
		if err != nil {
			return err
		}
		treasury, target := wallets[s.systemAccountID], wallets[userID]

		if treasury.Available.LessThan(amount) {
			metrics.InsufficientFunds.Inc()
			return errs.ErrInsufficientFunds
		}

		now := time.Now()
		treasury.Available = treasury.Available.Sub(amount)
		target.Available = target.Available.Add(amount)
		for _, w := range []*models.Wallet{treasury, target} {
			w.UpdatedAt = now
			if err := tx.Save(w).Error; err != nil {
				return fmt.Errorf("failed to save wallet: %w", err)
			}
		}

		_, err = ledger.Record(tx, models.LedgerTxDeposit, description,
			ledger.Debit(treasury.ID, amount, treasury.Available),
			ledger.Credit(target.ID, amount, target.Available),
		)
		return err
	})
}

// LedgerEntries returns the user's ledger history newest first, with the total
// count for pagination.
func (s *Service) LedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*EntryView, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx)

	var walletIDs []uuid.UUID
	if err := db.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Pluck("id", &walletIDs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to resolve wallets: %w", err)
	}
	if len(walletIDs) == 0 {
		return nil, 0, nil
	}

	var total int64
	if err := db.Model(&models.LedgerEntry{}).
		Where("wallet_id IN ?", walletIDs).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var entries []models.LedgerEntry
	if err := db.Where("wallet_id IN ?", walletIDs).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	views := make([]*EntryView, 0, len(entries))
	for i := range entries {
		var header models.LedgerTransaction
		if err := db.Where("id = ?", entries[i].TransactionID).First(&header).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load ledger transaction: %w", err)
		}
		var w models.Wallet
		if err := db.Where("id = ?", entries[i].WalletID).First(&w).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load wallet: %w", err)
		}
		views = append(views, &EntryView{Entry: entries[i], Transaction: header, Currency: w.CurrencyCode})
	}
	return views, total, nil
}

// lockWalletRow takes an exclusive lock on one wallet row and returns its
// current state read under that lock.
func (s *Service) lockWalletRow(tx *gorm.DB, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	if err := database.ForUpdate(tx).
		Where("user_id = ? AND currency_code = ?", userID, currency).
		First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &w, nil
}

// lockWalletRows locks the wallets of the given users in one currency,
// acquiring row locks in ascending wallet id order so concurrent multi-wallet
// operations cannot deadlock.
func (s *Service) lockWalletRows(tx *gorm.DB, currency string, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	unique := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	// Resolve ids first without locks, then lock in deterministic order.
	type ref struct {
		walletID uuid.UUID
		userID   uuid.UUID
	}
	refs := make([]ref, 0, len(unique))
	for _, userID := range unique {
		var w models.Wallet
		if err := tx.Select("id", "user_id").
			Where("user_id = ? AND currency_code = ?", userID, currency).
			First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.ErrWalletNotFound
			}
			return nil, fmt.Errorf("failed to resolve wallet: %w", err)
		}
		refs = append(refs, ref{walletID: w.ID, userID: w.UserID})
	}
	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].walletID[:], refs[j].walletID[:]) < 0
	})

	out := make(map[uuid.UUID]*models.Wallet, len(refs))
	for _, r := range refs {
		var w models.Wallet
		if err := database.ForUpdate(tx).Where("id = ?", r.walletID).First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.ErrWalletNotFound
			}
			return nil, fmt.Errorf("failed to lock wallet: %w", err)
		}
		out[r.userID] = &w
	}
	return out, nil
}
