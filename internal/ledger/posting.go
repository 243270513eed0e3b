package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/models"
	"github.com/finbooks/ledger/internal/models/events"
)

// PostingInput is one caller-supplied posting of a transaction to commit.
// Amount is signed, in minor units of the commodity.
type PostingInput struct {
	AccountID string
	Commodity string
	Amount    int64
	Memo      string
}

const maxCommitRetries = 3

// Commit validates and atomically commits a transaction. A zero
// timestamp means the clock collaborator assigns one. On success the
// transaction is appended as an immutable unit and the assigned id and
// commit timestamp are returned on the transaction.
//
// Validation runs in a fixed order, each step a distinct failure mode:
// empty postings, unresolved accounts, unregistered commodities,
// account/commodity mismatch, nonzero per-commodity sums, lock date.
// Storage write conflicts re-run the whole validate-append sequence
// against fresh state; validation results are never reused across
// retries.
func (s *Service) Commit(ctx context.Context, ledgerID, description string, timestamp time.Time, postings []PostingInput) (models.Transaction, error) {
	mu := s.ledgerLock(ledgerID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.commitLocked(ctx, ledgerID, description, timestamp, postings, "")
	if err != nil {
		return models.Transaction{}, err
	}

	return tx, nil
}

// Reverse commits a new transaction whose postings negate the original's,
// preserving history rather than deleting it. The original is marked with
// the reversal id in the same atomic unit, so a second reversal fails
// with ALREADY_REVERSED.
func (s *Service) Reverse(ctx context.Context, ledgerID, transactionID string) (models.Transaction, error) {
	mu := s.ledgerLock(ledgerID)
	mu.Lock()
	defer mu.Unlock()

	original, err := s.store.GetTransaction(ctx, ledgerID, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}

	if original.ReversedBy != "" {
		return models.Transaction{}, models.NewError(models.CodeAlreadyReversed, "transaction_id",
			"transaction was already reversed by "+original.ReversedBy)
	}

	inputs := make([]PostingInput, len(original.Postings))
	for i, p := range original.Postings {
		inputs[i] = PostingInput{
			AccountID: p.AccountID,
			Commodity: p.Commodity,
			Amount:    -p.Amount,
			Memo:      p.Memo,
		}
	}

	reversal, err := s.commitLocked(ctx, ledgerID, "Reversal of "+original.Description, time.Time{}, inputs, original.ID)
	if err != nil {
		return models.Transaction{}, err
	}

	s.publish(ctx, events.TopicTransactionReversed, events.TransactionReversed{
		TransactionID: original.ID,
		ReversalID:    reversal.ID,
		LedgerID:      ledgerID,
		OccurredAt:    s.clock.Now(),
	})

	return reversal, nil
}

// commitLocked runs validate-then-append under the ledger commit lock,
// retrying the full sequence on storage write conflicts.
func (s *Service) commitLocked(ctx context.Context, ledgerID, description string, timestamp time.Time, postings []PostingInput, reverses string) (models.Transaction, error) {
	var committed models.Transaction

	attempt := func() error {
		tx, seq, err := s.validateAndAppend(ctx, ledgerID, description, timestamp, postings, reverses)
		if err != nil {
			if models.Retryable(err) {
				s.logger.Warn("commit write conflict, retrying", zap.String("ledger_id", ledgerID))
				return err
			}

			s.logger.Debug("commit rejected", zap.String("ledger_id", ledgerID), zap.Error(err))

			return backoff.Permanent(err)
		}

		committed = tx

		s.logger.Info("transaction committed",
			zap.String("ledger_id", ledgerID),
			zap.String("transaction_id", tx.ID),
			zap.Uint64("sequence", seq),
			zap.Int("postings", len(tx.Postings)),
		)

		s.publish(ctx, events.TopicTransactionCommitted, committedEvent(tx, seq, s.clock.Now()))

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxCommitRetries),
		ctx,
	)

	if err := backoff.Retry(attempt, policy); err != nil {
		return models.Transaction{}, err
	}

	return committed, nil
}

func (s *Service) validateAndAppend(ctx context.Context, ledgerID, description string, timestamp time.Time, postings []PostingInput, reverses string) (models.Transaction, uint64, error) {
	l, err := s.store.GetLedger(ctx, ledgerID)
	if err != nil {
		return models.Transaction{}, 0, err
	}

	if len(postings) == 0 {
		return models.Transaction{}, 0, models.NewError(models.CodeEmptyTransaction, "postings", "transaction has no postings")
	}

	accounts := make(map[string]models.Account, len(postings))

	for _, p := range postings {
		if _, ok := accounts[p.AccountID]; ok {
			continue
		}

		a, err := s.store.GetAccount(ctx, ledgerID, p.AccountID)
		if err != nil {
			return models.Transaction{}, 0, err
		}

		accounts[p.AccountID] = a
	}

	commodities := make(map[string]struct{}, len(postings))

	for _, p := range postings {
		if _, ok := commodities[p.Commodity]; ok {
			continue
		}

		if _, err := s.store.GetCommodity(ctx, ledgerID, p.Commodity); err != nil {
			return models.Transaction{}, 0, err
		}

		commodities[p.Commodity] = struct{}{}
	}

	for _, p := range postings {
		if !accounts[p.AccountID].AllowsCommodity(p.Commodity) {
			return models.Transaction{}, 0, models.NewError(models.CodeCommodityMismatch, "postings",
				"account "+p.AccountID+" only accepts "+accounts[p.AccountID].Commodity+" postings")
		}
	}

	sums := make(map[string]int64, len(commodities))
	order := make([]string, 0, len(commodities))

	for _, p := range postings {
		if _, ok := sums[p.Commodity]; !ok {
			order = append(order, p.Commodity)
		}

		sums[p.Commodity] += p.Amount
	}

	for _, code := range order {
		if sums[code] != 0 {
			return models.Transaction{}, 0, models.NewUnbalancedError(code, sums[code])
		}
	}

	now := s.clock.Now()
	if timestamp.IsZero() {
		timestamp = now
	}

	if l.LockDate != nil && timestamp.Before(*l.LockDate) {
		return models.Transaction{}, 0, models.NewError(models.CodePeriodClosed, "timestamp",
			"timestamp is before the ledger lock date")
	}

	tx := models.Transaction{
		ID:          uuid.NewString(),
		LedgerID:    ledgerID,
		Timestamp:   timestamp,
		Description: strings.TrimSpace(description),
		Postings:    buildPostings(postings),
		CreatedBy:   s.identity.Principal(ctx),
		Reverses:    reverses,
		CreatedAt:   now,
	}

	seq, err := s.store.AppendTransaction(ctx, tx, reverses)
	if err != nil {
		return models.Transaction{}, 0, err
	}

	return tx, seq, nil
}

// publish delivers a domain event best-effort. The transaction is already
// durable; a publish failure is logged and never surfaced to the caller.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func buildPostings(inputs []PostingInput) []models.Posting {
	postings := make([]models.Posting, len(inputs))
	for i, in := range inputs {
		postings[i] = models.Posting{
			AccountID: in.AccountID,
			Commodity: in.Commodity,
			Amount:    in.Amount,
			Memo:      in.Memo,
		}
	}

	return postings
}

func committedEvent(tx models.Transaction, seq uint64, occurredAt time.Time) events.TransactionCommitted {
	postings := make([]events.PostingEvent, len(tx.Postings))
	for i, p := range tx.Postings {
		postings[i] = events.PostingEvent{
			AccountID: p.AccountID,
			Commodity: p.Commodity,
			Amount:    p.Amount,
		}
	}

	return events.TransactionCommitted{
		TransactionID: tx.ID,
		LedgerID:      tx.LedgerID,
		Sequence:      seq,
		Timestamp:     tx.Timestamp,
		Description:   tx.Description,
		Postings:      postings,
		CreatedBy:     tx.CreatedBy,
		OccurredAt:    occurredAt,
	}
}
