// Package features computes the per-user feature vector that feeds the
// scorers. Features are aggregates over the user's stored event history,
// evaluated as of a reference time so replays and backfills are
// deterministic.
package features

// Feature names. The vector order below is a contract shared with model
// artifacts: a loaded model whose feature_order disagrees is rejected.
const (
	TxnCount24h       = "txn_count_24h"
	TxnAmountSum24h   = "txn_amount_sum_24h"
	FailedLogins1h    = "failed_logins_1h"
	AccountAgeDays    = "account_age_days"
	UniqueCountries7d = "unique_countries_7d"
	AvgTxnAmount30d   = "avg_txn_amount_30d"
)

// Order is the canonical feature vector order.
var Order = []string{
	TxnCount24h,
	TxnAmountSum24h,
	FailedLogins1h,
	AccountAgeDays,
	UniqueCountries7d,
	AvgTxnAmount30d,
}

// Features maps feature names to values. Use Vector for the ordered form.
type Features map[string]float64

// Defaults returns a zero-valued feature set. Users with no history score
// against this.
func Defaults() Features {
	f := make(Features, len(Order))
	for _, name := range Order {
		f[name] = 0
	}

	return f
}

// Vector returns the values in canonical order. Missing names read as 0.
func (f Features) Vector() []float64 {
	vector := make([]float64, len(Order))
	for i, name := range Order {
		vector[i] = f[name]
	}

	return vector
}
