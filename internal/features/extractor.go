package features

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier is the minimal read surface the extractor needs. Satisfied by
// *storage.Connection and by *sql.Tx, so extraction can run inside a caller's
// transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Extractor computes feature vectors from the events table.
//
// All windows are inclusive on both ends: an event with ts exactly at
// asOf-window or at asOf is counted. account_age_days is the floor of whole
// UTC days since the user's first event, clamped to zero.
type Extractor struct {
	querier Querier
	windows Windows
}

// NewExtractor creates an extractor over the given query surface.
func NewExtractor(querier Querier, windows Windows) *Extractor {
	return &Extractor{querier: querier, windows: windows}
}

const hoursPerDay = 24

// aggregateQuery computes every windowed aggregate in one scan of the user's
// slice of the events index. Window bounds arrive as parameters so the
// planner caches one prepared statement.
const aggregateQuery = `
	SELECT
		COUNT(*) FILTER (
			WHERE event_type = 'transaction' AND ts >= $3
		) AS txn_count,
		COALESCE(SUM((payload_json->>'amount')::double precision) FILTER (
			WHERE event_type = 'transaction' AND ts >= $3
		), 0) AS txn_amount_sum,
		COUNT(*) FILTER (
			WHERE event_type = 'login'
				AND (payload_json->>'success')::boolean = FALSE
				AND ts >= $4
		) AS failed_logins,
		COUNT(DISTINCT payload_json->>'country') FILTER (
			WHERE event_type IN ('transaction', 'signup')
				AND payload_json ? 'country'
				AND ts >= $5
		) AS unique_countries,
		COALESCE(AVG((payload_json->>'amount')::double precision) FILTER (
			WHERE event_type = 'transaction' AND ts >= $6
		), 0) AS avg_txn_amount
	FROM events
	WHERE user_id = $1 AND ts <= $2`

const firstEventQuery = `SELECT MIN(ts) FROM events WHERE user_id = $1 AND ts <= $2`

// Compute extracts the feature set for a user as of the given reference
// time. Users with no history get the zero-valued defaults.
func (e *Extractor) Compute(ctx context.Context, userID string, asOf time.Time) (Features, error) {
	asOf = asOf.UTC()
	result := Defaults()

	var (
		txnCount        float64
		txnAmountSum    float64
		failedLogins    float64
		uniqueCountries float64
		avgTxnAmount    float64
	)

	err := e.querier.QueryRowContext(ctx, aggregateQuery,
		userID,
		asOf,
		asOf.Add(-e.windows.Txn),
		asOf.Add(-e.windows.FailedLogin),
		asOf.Add(-e.windows.Country),
		asOf.Add(-e.windows.AvgTxn),
	).Scan(&txnCount, &txnAmountSum, &failedLogins, &uniqueCountries, &avgTxnAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feature aggregates for user %s: %w", userID, err)
	}

	result[TxnCount24h] = txnCount
	result[TxnAmountSum24h] = txnAmountSum
	result[FailedLogins1h] = failedLogins
	result[UniqueCountries7d] = uniqueCountries
	result[AvgTxnAmount30d] = avgTxnAmount

	var firstEvent sql.NullTime

	err = e.querier.QueryRowContext(ctx, firstEventQuery, userID, asOf).Scan(&firstEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to find first event for user %s: %w", userID, err)
	}

	if firstEvent.Valid {
		result[AccountAgeDays] = AccountAge(firstEvent.Time, asOf)
	}

	return result, nil
}

// AccountAge returns the whole UTC days elapsed between the first event and
// the reference time, clamped to zero for clock skew.
func AccountAge(firstEvent, asOf time.Time) float64 {
	days := asOf.UTC().Sub(firstEvent.UTC()).Hours() / hoursPerDay

	aged := float64(int64(days)) // floor toward zero; negatives clamp below
	if aged < 0 {
		return 0
	}

	return aged
}
