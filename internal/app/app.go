// Package app wires the trading core together. The transport layer that owns
// the public API consumes the engines through this aggregate.
package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peerex/peerex/internal/currency"
	"github.com/peerex/peerex/internal/order"
	"github.com/peerex/peerex/internal/trade"
	"github.com/peerex/peerex/internal/wallet"
	"github.com/peerex/peerex/pkg/errs"
)

// App aggregates the core services
type App struct {
	Currencies *currency.Service
	Wallets    *wallet.Service
	Orders     *order.Service
	Trades     *trade.Service
}

// New wires the engines against one database handle
func New(logger *zap.Logger, db *gorm.DB, feeAccountID uuid.UUID) *App {
	currencies := currency.NewService(logger, db)
	wallets := wallet.NewService(logger, db, feeAccountID)
	orders := order.NewService(logger, db, currencies, wallets)
	trades := trade.NewService(logger, db, wallets, feeAccountID)
	return &App{
		Currencies: currencies,
		Wallets:    wallets,
		Orders:     orders,
		Trades:     trades,
	}
}

// Bootstrap seeds reference data and makes sure the fee sink owns a wallet in
// every currency before the first settlement can route a fee to it.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := a.Currencies.Seed(ctx); err != nil {
		return err
	}

	currencies, err := a.Currencies.List(ctx)
	if err != nil {
		return err
	}
	for _, ccy := range currencies {
		if _, err := a.Wallets.Create(ctx, a.Wallets.SystemAccountID(), ccy.Code); err != nil && !errs.Is(err, errs.ErrWalletExists) {
			return err
		}
	}
	return nil
}
