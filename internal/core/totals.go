package core

// CurrencyAmount is an amount aggregated under one source currency.
type CurrencyAmount struct {
	Currency Currency
	Amount   Money
}

// Totals is the aggregate view over a scoped record set: the received sum
// per source currency and the total disbursed in whole local units.
type Totals struct {
	ByCurrency []CurrencyAmount
	Disbursed  int64
}

// Amount returns the received total for one currency (zero if absent).
func (t Totals) Amount(c Currency) Money {
	for _, ca := range t.ByCurrency {
		if ca.Currency == c {
			return ca.Amount
		}
	}
	return Money{}
}
