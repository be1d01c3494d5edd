package features

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/riskflow-io/riskflow/internal/config"
)

// dbQuerier adapts *sql.DB to the Querier interface for tests.
type dbQuerier struct{ db *sql.DB }

func (q dbQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return q.db.QueryRowContext(ctx, query, args...)
}

func insertEvent(ctx context.Context, t *testing.T, db *sql.DB, userID, eventType string, ts time.Time, payload string) {
	t.Helper()

	_, err := db.ExecContext(ctx, `
		INSERT INTO events (event_id, user_id, event_type, ts, schema_version,
			payload_json, raw_payload_hash, accepted_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6, NOW())`,
		uuid.New(), userID, eventType, ts, payload,
		fmt.Sprintf("%064d", 0),
	)
	require.NoError(t, err)
}

func TestExtractor_Compute(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	db := testDB.Connection
	asOf := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Inside the 24h transaction window (boundary inclusive).
	insertEvent(ctx, t, db, "u1", "transaction", asOf.Add(-24*time.Hour),
		`{"amount": 100, "currency": "USD", "merchant": "a", "country": "US"}`)
	insertEvent(ctx, t, db, "u1", "transaction", asOf.Add(-time.Hour),
		`{"amount": 50, "currency": "USD", "merchant": "b", "country": "DE"}`)

	// Outside the 24h window but inside 30d: counts for the average only.
	insertEvent(ctx, t, db, "u1", "transaction", asOf.Add(-48*time.Hour),
		`{"amount": 10, "currency": "USD", "merchant": "c", "country": "FR"}`)

	// Failed login inside 1h, successful login ignored, old failure ignored.
	insertEvent(ctx, t, db, "u1", "login", asOf.Add(-30*time.Minute),
		`{"ip": "10.0.0.1", "success": false, "device_id": "d1"}`)
	insertEvent(ctx, t, db, "u1", "login", asOf.Add(-45*time.Minute),
		`{"ip": "10.0.0.1", "success": true, "device_id": "d1"}`)
	insertEvent(ctx, t, db, "u1", "login", asOf.Add(-3*time.Hour),
		`{"ip": "10.0.0.1", "success": false, "device_id": "d1"}`)

	// Signup 40 days ago fixes account age; its country is outside the 7d window.
	insertEvent(ctx, t, db, "u1", "signup", asOf.AddDate(0, 0, -40),
		`{"email_domain": "example.com", "country": "BR", "device_id": "d0"}`)

	// Events after asOf never count.
	insertEvent(ctx, t, db, "u1", "transaction", asOf.Add(time.Minute),
		`{"amount": 999, "currency": "USD", "merchant": "x", "country": "JP"}`)

	// Another user's events never leak in.
	insertEvent(ctx, t, db, "u2", "transaction", asOf.Add(-time.Hour),
		`{"amount": 777, "currency": "USD", "merchant": "y", "country": "CN"}`)

	extractor := NewExtractor(dbQuerier{db}, DefaultWindows())

	got, err := extractor.Compute(ctx, "u1", asOf)
	require.NoError(t, err)

	assert.Equal(t, 2.0, got[TxnCount24h])
	assert.InDelta(t, 150.0, got[TxnAmountSum24h], 1e-9)
	assert.Equal(t, 1.0, got[FailedLogins1h])
	assert.Equal(t, 40.0, got[AccountAgeDays])
	assert.Equal(t, 3.0, got[UniqueCountries7d], "US, DE, FR within 7d; BR is older")
	assert.InDelta(t, (100.0+50.0+10.0)/3.0, got[AvgTxnAmount30d], 1e-9)
}

func TestExtractor_NoHistoryReturnsDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	extractor := NewExtractor(dbQuerier{testDB.Connection}, DefaultWindows())

	got, err := extractor.Compute(ctx, "ghost", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}
