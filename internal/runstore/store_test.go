package runstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/events"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQuery(t *testing.T) {
	query, args := listQuery(Filter{})
	assert.Equal(t, `SELECT data FROM xmc_runs WHERE TRUE ORDER BY started_at DESC LIMIT $1`, query)
	assert.Equal(t, []any{DefaultLimit}, args)

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	query, args = listQuery(Filter{
		Stages: []string{"evaluate", "merge"},
		Status: events.StatusFailed,
		Since:  since,
		Limit:  10_000,
	})
	assert.Equal(t,
		`SELECT data FROM xmc_runs WHERE TRUE AND stage = ANY($1) AND status = $2 AND started_at >= $3 ORDER BY started_at DESC LIMIT $4`,
		query)
	require.Len(t, args, 4)
	assert.Equal(t, "failed", args[1])
	assert.Equal(t, since, args[2])
	assert.Equal(t, MaxLimit, args[3])
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "xmc_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "xmc"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	db, err := postgres.New(context.Background(), cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreIntegration(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	store := New(db)
	require.NoError(t, store.Migrate(ctx))

	stage := "it-" + uuid.NewString()[:8]
	ev := events.NewRunEvent("", stage)
	ev.Input("pred", "pred.txt")
	require.NoError(t, ev.Finish(map[string]float64{"P@1": 50}, nil))

	inserted, err := store.Save(ctx, *ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Save(ctx, *ev)
	require.NoError(t, err)
	assert.False(t, inserted, "redelivered event must not be stored twice")

	got, err := store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, stage, got.Stage)
	assert.JSONEq(t, `{"P@1":50}`, string(got.Result))

	_, err = store.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := store.List(ctx, Filter{Stages: []string{stage}})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ev.ID, runs[0].ID)

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range summary {
		if s.Stage == stage {
			found = true
			assert.Equal(t, int64(1), s.Runs)
			assert.Equal(t, int64(0), s.Failures)
		}
	}
	assert.True(t, found)
}
