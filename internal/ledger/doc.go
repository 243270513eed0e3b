// Package ledger implements the double-entry posting and
// balance-consistency engine.
//
// Core flow:
//   - Commit validates a set of postings against the account tree and
//     commodity registry, then appends them as one immutable unit.
//   - Reverse synthesizes and commits the negation of a prior
//     transaction, preserving history.
//   - BalanceAsOf and SubtreeBalance project balances purely from the
//     committed transaction log.
//
// Every committed transaction satisfies the defining invariant of
// double-entry accounting: for each commodity present, the signed posting
// amounts sum to zero. Failures are typed domain errors.
package ledger
