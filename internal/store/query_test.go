package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func TestSelectResultsPostgres(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q, args, err := SelectResults(Postgres, domain.ResultFilter{
		MarketID: "m1",
		Action:   domain.ActionEscalate,
		Since:    &since,
		Limit:    10,
		Offset:   20,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT result FROM resolutions WHERE market_id = $1 AND settlement_action = $2 AND resolved_at >= $3 ORDER BY resolved_at DESC, id DESC LIMIT 10 OFFSET 20",
		q)
	assert.Equal(t, []any{"m1", "ESCALATE", since}, args)
}

func TestSelectResultsSQLiteDefaults(t *testing.T) {
	q, args, err := SelectResults(SQLite, domain.ResultFilter{Category: domain.CategoryEvent}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT result FROM resolutions WHERE category = ? ORDER BY resolved_at DESC, id DESC LIMIT 100",
		q)
	assert.Equal(t, []any{"EVENT_RESOLVABLE"}, args)
}

func TestInsertResultEncodesTimeAndFlags(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)
	ib, err := InsertResult(SQLite, domain.ResolutionResult{
		MarketID:         "m1",
		Category:         domain.CategoryData,
		Outcome:          domain.OutcomeUndetermined,
		Confidence:       1,
		SettlementAction: domain.ActionDefer,
		ResolvedAt:       at,
	})
	require.NoError(t, err)

	q, args, err := ib.ToSql()
	require.NoError(t, err)
	assert.Contains(t, q, "INSERT INTO resolutions (market_id,run_id,category,outcome,confidence,settlement_action,reasoning,flags,result,resolved_at)")
	require.Len(t, args, len(ResultColumns))
	assert.Equal(t, "[]", args[7])
	assert.Equal(t, at.UnixMilli(), args[9])

	decoded, err := DecodeResult([]byte(args[8].(string)))
	require.NoError(t, err)
	assert.Equal(t, "m1", decoded.MarketID)
	assert.Equal(t, domain.ActionDefer, decoded.SettlementAction)
	assert.NotNil(t, decoded.Flags)
}
