package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommodityMulti is the account commodity value that permits postings in
// any registered commodity.
const CommodityMulti = "multi"

// Commodity is a unit of value (currency or asset) registered within a
// ledger. Scale is the number of fractional digits of the minor unit, e.g.
// 2 for cents. Scale becomes immutable once any posting references the
// code.
type Commodity struct {
	LedgerID  string
	Code      string
	Name      string
	Symbol    string
	Scale     int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MajorUnits renders an amount of minor units in the commodity's major
// unit, e.g. 100000 cents -> 1000 USD.
func (c Commodity) MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.Scale)
}

// MinorUnits converts a major-unit amount to minor units. Amounts with
// more fractional digits than the commodity's scale are rejected.
func (c Commodity) MinorUnits(major decimal.Decimal) (int64, error) {
	shifted := major.Shift(c.Scale)
	if !shifted.IsInteger() {
		return 0, NewError(CodeInvalidInput, "amount", "amount has more precision than the commodity scale allows")
	}

	return shifted.IntPart(), nil
}
