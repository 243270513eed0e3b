package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/models"
)

// CreateLedger registers a new ledger. Ledgers are created explicitly and
// never deleted once they hold transactions; there is no delete
// operation.
func (s *Service) CreateLedger(ctx context.Context, name, description, defaultCommodity string) (models.Ledger, error) {
	if strings.TrimSpace(name) == "" {
		return models.Ledger{}, models.NewError(models.CodeInvalidInput, "name", "name is required")
	}

	if strings.TrimSpace(defaultCommodity) == "" {
		return models.Ledger{}, models.NewError(models.CodeInvalidInput, "default_commodity", "default commodity is required")
	}

	now := s.clock.Now()
	l := models.Ledger{
		ID:               uuid.NewString(),
		Name:             name,
		Description:      description,
		DefaultCommodity: defaultCommodity,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateLedger(ctx, l); err != nil {
		return models.Ledger{}, err
	}

	s.logger.Info("ledger created", zap.String("ledger_id", l.ID), zap.String("name", l.Name))

	return l, nil
}

// GetLedger returns a ledger by id.
func (s *Service) GetLedger(ctx context.Context, ledgerID string) (models.Ledger, error) {
	return s.store.GetLedger(ctx, ledgerID)
}

// SetLockDate sets the earliest permitted posting timestamp. Commits with
// an earlier timestamp fail with PERIOD_CLOSED. The ledger commit lock is
// held so the new lock date is checked against a consistent view by
// concurrent commits.
func (s *Service) SetLockDate(ctx context.Context, ledgerID string, lockDate time.Time) (models.Ledger, error) {
	mu := s.ledgerLock(ledgerID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.store.GetLedger(ctx, ledgerID)
	if err != nil {
		return models.Ledger{}, err
	}

	l.LockDate = &lockDate
	l.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateLedger(ctx, l); err != nil {
		return models.Ledger{}, err
	}

	s.logger.Info("ledger lock date set",
		zap.String("ledger_id", ledgerID),
		zap.Time("lock_date", lockDate),
	)

	return l, nil
}
