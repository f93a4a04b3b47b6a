// Package odds contains the pure pricing math of the pari-mutuel engine:
// pool-ratio odds quoting and bet-duration parsing.
package odds

import (
	"github.com/shopspring/decimal"
)

var (
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

// Quote maps the current pool state to the quoted odds pair. A side's odds
// are the opposing pool's share of the total, as a percentage rounded to two
// decimal places:
//
//	yesOdds = 100 * noPool / (yesPool + noPool)
//	noOdds  = 100 * yesPool / (yesPool + noPool)
//
// so backing the smaller side yields the higher quote. Empty pools quote
// (50, 50). The two values are rounded independently; their sum may drift
// from 100 by a cent after rounding, which callers must tolerate.
func Quote(yesPool, noPool decimal.Decimal) (yesOdds, noOdds decimal.Decimal) {
	total := yesPool.Add(noPool)
	if total.IsZero() {
		return fifty, fifty
	}
	yesOdds = hundred.Mul(noPool).Div(total).Round(2)
	noOdds = hundred.Mul(yesPool).Div(total).Round(2)
	return yesOdds, noOdds
}
