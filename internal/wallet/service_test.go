package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/models"
	"github.com/peerex/peerex/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	db := testutil.NewDB(t)
	systemID := uuid.New()
	return NewService(zap.NewNop(), db, systemID), db, systemID
}

func fund(t *testing.T, db *gorm.DB, walletID uuid.UUID, available string) {
	t.Helper()
	require.NoError(t, db.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("available", decimal.RequireFromString(available)).Error)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAndGet(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	assert.True(t, w.Available.IsZero())
	assert.True(t, w.Locked.IsZero())

	got, err := s.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	_, err = s.Create(ctx, user, "BTC")
	assert.True(t, errs.Is(err, errs.ErrWalletExists))

	_, err = s.Get(ctx, user, "ETH")
	assert.True(t, errs.Is(err, errs.ErrWalletNotFound))
}

func TestListComputesTotal(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	fund(t, db, w.ID, "3")
	require.NoError(t, s.Lock(ctx, user, "BTC", dec("1"), "escrow"))

	views, err := s.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Total.Equal(dec("3")), "total should stay 3, got %s", views[0].Total)
	assert.True(t, views[0].Wallet.Available.Equal(dec("2")))
	assert.True(t, views[0].Wallet.Locked.Equal(dec("1")))
}

func TestLockMovesAvailableToLocked(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	fund(t, db, w.ID, "2.5")

	require.NoError(t, s.Lock(ctx, user, "BTC", dec("1.001"), "escrow"))

	got, err := s.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(dec("1.499")), "available: %s", got.Available)
	assert.True(t, got.Locked.Equal(dec("1.001")), "locked: %s", got.Locked)

	// Two balanced entries recorded for the escrow.
	var entries []models.LedgerEntry
	require.NoError(t, db.Where("wallet_id = ?", w.ID).Find(&entries).Error)
	require.Len(t, entries, 2)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	assert.True(t, sum.IsZero())
}

func TestLockInsufficientFunds(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	fund(t, db, w.ID, "1")

	err = s.Lock(ctx, user, "BTC", dec("1.001"), "escrow")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInsufficientFunds))
	assert.Equal(t, errs.KindInsufficientFunds, errs.KindOf(err))

	// No partial state: balances untouched, no ledger rows.
	got, err := s.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(dec("1")))
	assert.True(t, got.Locked.IsZero())

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUnlockReversesLock(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	fund(t, db, w.ID, "2")

	require.NoError(t, s.Lock(ctx, user, "BTC", dec("1.5"), "escrow"))
	require.NoError(t, s.Unlock(ctx, user, "BTC", dec("1.5"), "unwind"))

	got, err := s.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(dec("2")))
	assert.True(t, got.Locked.IsZero())

	err = s.Unlock(ctx, user, "BTC", dec("0.1"), "too much")
	assert.True(t, errs.Is(err, errs.ErrInsufficientLocked))
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	for _, amount := range []string{"0", "-1"} {
		assert.True(t, errs.Is(s.Lock(ctx, user, "BTC", dec(amount), "x"), errs.ErrNonPositiveAmount))
		assert.True(t, errs.Is(s.Unlock(ctx, user, "BTC", dec(amount), "x"), errs.ErrNonPositiveAmount))
		assert.True(t, errs.Is(s.Deposit(ctx, user, "BTC", dec(amount), "x"), errs.ErrNonPositiveAmount))
	}
}

func TestSettleMovesEscrowToBuyerAndFeeSink(t *testing.T) {
	s, db, systemID := newTestService(t)
	ctx := context.Background()
	seller, buyer := uuid.New(), uuid.New()

	sellerWallet, err := s.Create(ctx, seller, "BTC")
	require.NoError(t, err)
	_, err = s.Create(ctx, buyer, "BTC")
	require.NoError(t, err)
	_, err = s.Create(ctx, systemID, "BTC")
	require.NoError(t, err)

	fund(t, db, sellerWallet.ID, "1.001")
	require.NoError(t, s.Lock(ctx, seller, "BTC", dec("1.001"), "escrow"))

	require.NoError(t, s.Settle(ctx, seller, buyer, systemID, "BTC", dec("1"), dec("0.001"), "trade release"))

	sw, _ := s.Get(ctx, seller, "BTC")
	bw, _ := s.Get(ctx, buyer, "BTC")
	fw, _ := s.Get(ctx, systemID, "BTC")
	assert.True(t, sw.Locked.IsZero(), "seller locked: %s", sw.Locked)
	assert.True(t, sw.Available.IsZero())
	assert.True(t, bw.Available.Equal(dec("1")), "buyer available: %s", bw.Available)
	assert.True(t, fw.Available.Equal(dec("0.001")), "fee available: %s", fw.Available)

	// Settlement is one transaction with exactly three entries summing to zero.
	var headers []models.LedgerTransaction
	require.NoError(t, db.Where("description = ?", "trade release").Find(&headers).Error)
	require.Len(t, headers, 1)

	var entries []models.LedgerEntry
	require.NoError(t, db.Where("transaction_id = ?", headers[0].ID).Find(&entries).Error)
	require.Len(t, entries, 3)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	assert.True(t, sum.IsZero(), "settle entries must sum to zero, got %s", sum)
}

func TestSettleRequiresEscrow(t *testing.T) {
	s, _, systemID := newTestService(t)
	ctx := context.Background()
	seller, buyer := uuid.New(), uuid.New()

	_, err := s.Create(ctx, seller, "BTC")
	require.NoError(t, err)
	_, err = s.Create(ctx, buyer, "BTC")
	require.NoError(t, err)
	_, err = s.Create(ctx, systemID, "BTC")
	require.NoError(t, err)

	err = s.Settle(ctx, seller, buyer, systemID, "BTC", dec("1"), dec("0.001"), "no escrow")
	assert.True(t, errs.Is(err, errs.ErrInsufficientLocked))
}

func TestDepositFundedFromTreasury(t *testing.T) {
	s, db, systemID := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	treasury, err := s.Create(ctx, systemID, "THB")
	require.NoError(t, err)
	_, err = s.Create(ctx, user, "THB")
	require.NoError(t, err)
	fund(t, db, treasury.ID, "1000000")

	require.NoError(t, s.Deposit(ctx, user, "THB", dec("50000"), "initial deposit"))

	uw, _ := s.Get(ctx, user, "THB")
	tw, _ := s.Get(ctx, systemID, "THB")
	assert.True(t, uw.Available.Equal(dec("50000")))
	assert.True(t, tw.Available.Equal(dec("950000")))

	// Deposit past the treasury balance is refused.
	err = s.Deposit(ctx, user, "THB", dec("10000000"), "too big")
	assert.True(t, errs.Is(err, errs.ErrInsufficientFunds))
}

func TestLedgerEntriesPagination(t *testing.T) {
	s, db, systemID := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	treasury, err := s.Create(ctx, systemID, "THB")
	require.NoError(t, err)
	_, err = s.Create(ctx, user, "THB")
	require.NoError(t, err)
	fund(t, db, treasury.ID, "1000")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Deposit(ctx, user, "THB", dec("10"), "deposit"))
	}

	views, total, err := s.LedgerEntries(ctx, user, 3, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, views, 3)
	for _, v := range views {
		assert.Equal(t, "THB", v.Currency)
		assert.Equal(t, models.LedgerTxDeposit, v.Transaction.Type)
	}

	views, total, err = s.LedgerEntries(ctx, user, 3, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, views, 2)
}

// Given available balance B and N concurrent locks of L each, exactly
// floor(B/L) succeed and balances never go negative.
func TestConcurrentLocksNoDoubleSpend(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	w, err := s.Create(ctx, user, "BTC")
	require.NoError(t, err)
	fund(t, db, w.ID, "10")

	n := 25
	lockAmount := dec("1")
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = s.Lock(ctx, user, "BTC", lockAmount, "escrow")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errs.Is(err, errs.ErrInsufficientFunds), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, succeeded)

	got, err := s.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.True(t, got.Available.IsZero(), "available: %s", got.Available)
	assert.True(t, got.Locked.Equal(dec("10")), "locked: %s", got.Locked)
}
