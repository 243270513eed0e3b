package ledger

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/models"
)

// RegisterCommodity adds a commodity to a ledger's registry.
// Re-registering an existing code with the same scale is a no-op that
// returns the existing record. A different scale fails with
// COMMODITY_LOCKED once any posting references the code, and
// DUPLICATE_COMMODITY before that.
func (s *Service) RegisterCommodity(ctx context.Context, ledgerID, code, name, symbol string, scale int32) (models.Commodity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.Commodity{}, models.NewError(models.CodeInvalidInput, "code", "code is required")
	}

	if code == models.CommodityMulti {
		return models.Commodity{}, models.NewError(models.CodeInvalidInput, "code", "code is reserved")
	}

	if scale < 0 {
		return models.Commodity{}, models.NewError(models.CodeInvalidInput, "scale", "scale must not be negative")
	}

	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return models.Commodity{}, err
	}

	existing, err := s.store.GetCommodity(ctx, ledgerID, code)
	switch {
	case err == nil:
		if existing.Scale == scale {
			return existing, nil
		}

		inUse, useErr := s.store.CommodityInUse(ctx, ledgerID, code)
		if useErr != nil {
			return models.Commodity{}, useErr
		}

		if inUse {
			return models.Commodity{}, models.NewError(models.CodeCommodityLocked, "scale",
				"commodity is referenced by postings and its scale is immutable")
		}

		return models.Commodity{}, models.NewError(models.CodeDuplicateCommodity, "code",
			"commodity already registered with a different scale")
	case !models.IsCode(err, models.CodeUnknownCommodity):
		return models.Commodity{}, err
	}

	now := s.clock.Now()
	c := models.Commodity{
		LedgerID:  ledgerID,
		Code:      code,
		Name:      name,
		Symbol:    symbol,
		Scale:     scale,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveCommodity(ctx, c); err != nil {
		return models.Commodity{}, err
	}

	s.logger.Info("commodity registered",
		zap.String("ledger_id", ledgerID),
		zap.String("code", code),
		zap.Int32("scale", scale),
	)

	return c, nil
}

// GetCommodity returns a registered commodity or UNKNOWN_COMMODITY.
func (s *Service) GetCommodity(ctx context.Context, ledgerID, code string) (models.Commodity, error) {
	return s.store.GetCommodity(ctx, ledgerID, code)
}

// ListCommodities returns a ledger's registry.
func (s *Service) ListCommodities(ctx context.Context, ledgerID string) ([]models.Commodity, error) {
	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return nil, err
	}

	return s.store.ListCommodities(ctx, ledgerID)
}

// UpdateCommodityDisplay changes a commodity's display name and symbol.
// Scale is not touched here; it only changes through RegisterCommodity
// under the lock rules.
func (s *Service) UpdateCommodityDisplay(ctx context.Context, ledgerID, code, name, symbol string) (models.Commodity, error) {
	c, err := s.store.GetCommodity(ctx, ledgerID, code)
	if err != nil {
		return models.Commodity{}, err
	}

	c.Name = name
	c.Symbol = symbol
	c.UpdatedAt = s.clock.Now()

	if err := s.store.SaveCommodity(ctx, c); err != nil {
		return models.Commodity{}, err
	}

	return c, nil
}
