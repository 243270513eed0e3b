package models

import "time"

// Role classifies an account by its accounting function.
type Role string

const (
	RoleAsset     Role = "asset"
	RoleLiability Role = "liability"
	RoleEquity    Role = "equity"
	RoleIncome    Role = "income"
	RoleExpense   Role = "expense"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAsset, RoleLiability, RoleEquity, RoleIncome, RoleExpense:
		return Role(s), nil
	}

	return "", NewError(CodeInvalidInput, "role", "role must be one of asset, liability, equity, income, expense")
}

// PathSeparator joins account names into resolvable paths, e.g.
// "Expenses.Food".
const PathSeparator = "."

// Account is a node in a ledger's hierarchical classification of value.
// ParentID is empty for root accounts; children are found through a
// parent index rather than embedded collections. Role and Commodity are
// immutable once the account has at least one posting.
type Account struct {
	ID        string
	LedgerID  string
	ParentID  string
	Name      string
	Role      Role
	Commodity string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsCommodity reports whether a posting in the given commodity may be
// applied to this account.
func (a Account) AllowsCommodity(code string) bool {
	return a.Commodity == CommodityMulti || a.Commodity == code
}
