package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
	"github.com/finbooks/ledger/internal/storage/memory"
)

// fixture is a service over a fresh in-memory store with one ledger and
// USD (scale 2) registered.
type fixture struct {
	svc    *Service
	store  *memory.Store
	ledger models.Ledger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := memory.NewStore()
	svc := NewService(store, opts...)

	l, err := svc.CreateLedger(context.Background(), "Household", "personal books", "USD")
	require.NoError(t, err)

	_, err = svc.RegisterCommodity(context.Background(), l.ID, "USD", "US Dollar", "$", 2)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, ledger: l}
}

func (f *fixture) account(t *testing.T, parentID, name string, role models.Role, commodity string) models.Account {
	t.Helper()

	a, err := f.svc.CreateAccount(context.Background(), f.ledger.ID, parentID, name, role, commodity)
	require.NoError(t, err)

	return a
}

func (f *fixture) commit(t *testing.T, postings ...PostingInput) models.Transaction {
	t.Helper()

	tx, err := f.svc.Commit(context.Background(), f.ledger.ID, "test transaction", time.Time{}, postings)
	require.NoError(t, err)

	return tx
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

var _ interfaces.EventPublisher = (*capturingPublisher)(nil)

func (p *capturingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.topics...)
}
