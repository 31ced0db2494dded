// Package currency serves the immutable currency reference data.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peerex/peerex/pkg/errs"
	"github.com/peerex/peerex/pkg/models"
)

// Service looks up and seeds currencies
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a currency service
func NewService(logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{logger: logger, db: db}
}

// Get returns the currency with the given code
func (s *Service) Get(ctx context.Context, code string) (*models.Currency, error) {
	var ccy models.Currency
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&ccy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCurrencyNotFound
		}
		return nil, fmt.Errorf("failed to find currency %s: %w", code, err)
	}
	return &ccy, nil
}

// List returns all currencies ordered by code
func (s *Service) List(ctx context.Context) ([]*models.Currency, error) {
	var currencies []*models.Currency
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&currencies).Error; err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	return currencies, nil
}

// Seed upserts the reference currency set. Existing rows are left untouched so
// repeated startups are idempotent.
func (s *Service) Seed(ctx context.Context) error {
	currencies := []models.Currency{
		{Code: "BTC", Name: "Bitcoin", Class: models.CurrencyCrypto, Precision: 8},
		{Code: "ETH", Name: "Ethereum", Class: models.CurrencyCrypto, Precision: 18},
		{Code: "USDT", Name: "Tether (USDT)", Class: models.CurrencyCrypto, Precision: 6},
		{Code: "THB", Name: "Thai Baht", Class: models.CurrencyFiat, Precision: 2},
		{Code: "USD", Name: "US Dollar", Class: models.CurrencyFiat, Precision: 2},
	}

	for i := range currencies {
		currencies[i].CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&currencies).Error; err != nil {
		return fmt.Errorf("failed to seed currencies: %w", err)
	}

	s.logger.Info("Currency reference data seeded", zap.Int("count", len(currencies)))
	return nil
}
