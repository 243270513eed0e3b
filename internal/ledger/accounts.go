package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/models"
)

// CreateAccount adds an account to a ledger's tree. The parent must
// already exist in the same ledger, which makes cycles structurally
// impossible at creation. Sibling names under one parent are unique.
func (s *Service) CreateAccount(ctx context.Context, ledgerID, parentID, name string, role models.Role, commodity string) (models.Account, error) {
	if err := validateAccountName(name); err != nil {
		return models.Account{}, err
	}

	if _, err := models.ParseRole(string(role)); err != nil {
		return models.Account{}, err
	}

	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return models.Account{}, err
	}

	if commodity != models.CommodityMulti {
		if _, err := s.store.GetCommodity(ctx, ledgerID, commodity); err != nil {
			return models.Account{}, err
		}
	}

	if parentID != "" {
		if _, err := s.store.GetAccount(ctx, ledgerID, parentID); err != nil {
			if models.IsCode(err, models.CodeAccountNotFound) {
				return models.Account{}, models.NewError(models.CodeInvalidParent, "parent_id", "parent account does not exist in the ledger")
			}

			return models.Account{}, err
		}
	}

	if err := s.checkSiblingName(ctx, ledgerID, parentID, name, ""); err != nil {
		return models.Account{}, err
	}

	now := s.clock.Now()
	a := models.Account{
		ID:        uuid.NewString(),
		LedgerID:  ledgerID,
		ParentID:  parentID,
		Name:      name,
		Role:      role,
		Commodity: commodity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveAccount(ctx, a); err != nil {
		return models.Account{}, err
	}

	s.logger.Info("account created",
		zap.String("ledger_id", ledgerID),
		zap.String("account_id", a.ID),
		zap.String("name", name),
		zap.String("role", string(role)),
	)

	return a, nil
}

// GetAccount returns one account of a ledger.
func (s *Service) GetAccount(ctx context.Context, ledgerID, accountID string) (models.Account, error) {
	return s.store.GetAccount(ctx, ledgerID, accountID)
}

// ListAccounts returns the ledger's account forest.
func (s *Service) ListAccounts(ctx context.Context, ledgerID string) ([]models.Account, error) {
	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return nil, err
	}

	return s.store.ListAccounts(ctx, ledgerID)
}

// RenameAccount changes an account's name. Renames stay allowed after the
// account has postings; only role and commodity lock.
func (s *Service) RenameAccount(ctx context.Context, ledgerID, accountID, name string) (models.Account, error) {
	if err := validateAccountName(name); err != nil {
		return models.Account{}, err
	}

	a, err := s.store.GetAccount(ctx, ledgerID, accountID)
	if err != nil {
		return models.Account{}, err
	}

	if err := s.checkSiblingName(ctx, ledgerID, a.ParentID, name, a.ID); err != nil {
		return models.Account{}, err
	}

	a.Name = name
	a.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return models.Account{}, err
	}

	return a, nil
}

// ReparentAccount moves an account under a new parent (empty for root).
// Moving an account under itself or one of its descendants fails with
// INVALID_PARENT, which keeps the forest acyclic.
func (s *Service) ReparentAccount(ctx context.Context, ledgerID, accountID, newParentID string) (models.Account, error) {
	a, err := s.store.GetAccount(ctx, ledgerID, accountID)
	if err != nil {
		return models.Account{}, err
	}

	if newParentID != "" {
		if newParentID == accountID {
			return models.Account{}, models.NewError(models.CodeInvalidParent, "parent_id", "account cannot be its own parent")
		}

		if _, err := s.store.GetAccount(ctx, ledgerID, newParentID); err != nil {
			if models.IsCode(err, models.CodeAccountNotFound) {
				return models.Account{}, models.NewError(models.CodeInvalidParent, "parent_id", "parent account does not exist in the ledger")
			}

			return models.Account{}, err
		}

		descendant, err := s.isDescendant(ctx, ledgerID, accountID, newParentID)
		if err != nil {
			return models.Account{}, err
		}

		if descendant {
			return models.Account{}, models.NewError(models.CodeInvalidParent, "parent_id", "new parent is a descendant of the account")
		}
	}

	if err := s.checkSiblingName(ctx, ledgerID, newParentID, a.Name, a.ID); err != nil {
		return models.Account{}, err
	}

	a.ParentID = newParentID
	a.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return models.Account{}, err
	}

	return a, nil
}

// RetypeAccount changes an account's role and commodity. Both are
// immutable once the account has at least one posting.
func (s *Service) RetypeAccount(ctx context.Context, ledgerID, accountID string, role models.Role, commodity string) (models.Account, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return models.Account{}, err
	}

	a, err := s.store.GetAccount(ctx, ledgerID, accountID)
	if err != nil {
		return models.Account{}, err
	}

	if role != a.Role || commodity != a.Commodity {
		posted, err := s.store.AccountHasPostings(ctx, ledgerID, accountID)
		if err != nil {
			return models.Account{}, err
		}

		if posted {
			return models.Account{}, models.NewError(models.CodeAccountLocked, "account_id",
				"role and commodity are immutable once the account has postings")
		}
	}

	if commodity != models.CommodityMulti {
		if _, err := s.store.GetCommodity(ctx, ledgerID, commodity); err != nil {
			return models.Account{}, err
		}
	}

	a.Role = role
	a.Commodity = commodity
	a.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return models.Account{}, err
	}

	return a, nil
}

// ResolveAccount returns the account at a dot-delimited path of names,
// e.g. "Expenses.Food", walking from the ledger's root accounts.
func (s *Service) ResolveAccount(ctx context.Context, ledgerID, path string) (models.Account, error) {
	if strings.TrimSpace(path) == "" {
		return models.Account{}, models.NewError(models.CodeInvalidInput, "path", "path is required")
	}

	accounts, err := s.ListAccounts(ctx, ledgerID)
	if err != nil {
		return models.Account{}, err
	}

	children := childIndex(accounts)

	parentID := ""

	var current models.Account

	for _, segment := range strings.Split(path, models.PathSeparator) {
		found := false

		for _, child := range children[parentID] {
			if child.Name == segment {
				current = child
				parentID = child.ID
				found = true

				break
			}
		}

		if !found {
			return models.Account{}, models.NewError(models.CodeAccountNotFound, "path", "no account at path "+path)
		}
	}

	return current, nil
}

// AccountPath renders the dot-delimited path of an account.
func (s *Service) AccountPath(ctx context.Context, ledgerID, accountID string) (string, error) {
	accounts, err := s.ListAccounts(ctx, ledgerID)
	if err != nil {
		return "", err
	}

	byID := make(map[string]models.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	a, ok := byID[accountID]
	if !ok {
		return "", models.NewError(models.CodeAccountNotFound, "account_id", "account not found")
	}

	segments := []string{a.Name}
	for a.ParentID != "" {
		a, ok = byID[a.ParentID]
		if !ok {
			return "", models.NewError(models.CodeInternal, "account_id", "orphaned parent reference in account tree")
		}

		segments = append([]string{a.Name}, segments...)
	}

	return strings.Join(segments, models.PathSeparator), nil
}

// isDescendant reports whether candidate sits in the subtree rooted at
// accountID, by walking candidate's parent chain.
func (s *Service) isDescendant(ctx context.Context, ledgerID, accountID, candidate string) (bool, error) {
	current := candidate

	for current != "" {
		if current == accountID {
			return true, nil
		}

		a, err := s.store.GetAccount(ctx, ledgerID, current)
		if err != nil {
			return false, err
		}

		current = a.ParentID
	}

	return false, nil
}

func (s *Service) checkSiblingName(ctx context.Context, ledgerID, parentID, name, selfID string) error {
	accounts, err := s.store.ListAccounts(ctx, ledgerID)
	if err != nil {
		return err
	}

	for _, a := range accounts {
		if a.ParentID == parentID && a.Name == name && a.ID != selfID {
			return models.NewError(models.CodeDuplicateName, "name", "a sibling account with this name already exists")
		}
	}

	return nil
}

func validateAccountName(name string) error {
	if strings.TrimSpace(name) == "" {
		return models.NewError(models.CodeInvalidInput, "name", "name is required")
	}

	if strings.Contains(name, models.PathSeparator) {
		return models.NewError(models.CodeInvalidInput, "name", "name must not contain the path separator")
	}

	return nil
}

// childIndex builds the parent id -> children index used for tree walks,
// preserving the input order of accounts.
func childIndex(accounts []models.Account) map[string][]models.Account {
	children := make(map[string][]models.Account)
	for _, a := range accounts {
		children[a.ParentID] = append(children[a.ParentID], a)
	}

	return children
}
