package core

import "sort"

// CurrencySummary totals one currency of a data file. Values are in minor
// units, like Transaction.Amount.
type CurrencySummary struct {
	Currency string  `json:"currency"`
	TotalIn  float64 `json:"total_in"`
	TotalOut float64 `json:"total_out"`
	Balance  float64 `json:"balance"`
}

// Summarize computes per-currency inflow, outflow and balance, ordered by
// total volume (in + out) descending.
func Summarize(txs []Transaction) []CurrencySummary {
	index := make(map[string]int)
	var out []CurrencySummary
	for _, t := range txs {
		i, ok := index[t.Currency]
		if !ok {
			i = len(out)
			index[t.Currency] = i
			out = append(out, CurrencySummary{Currency: t.Currency})
		}
		switch {
		case t.IsIncome():
			out[i].TotalIn += float64(t.Amount)
		case t.IsExpense():
			out[i].TotalOut += float64(-t.Amount)
		}
	}
	for i := range out {
		out[i].Balance = out[i].TotalIn - out[i].TotalOut
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalIn+out[i].TotalOut > out[j].TotalIn+out[j].TotalOut
	})
	return out
}
