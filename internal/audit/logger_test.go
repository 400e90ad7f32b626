package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uberfix/fixhooks/internal/platform/middleware"
)

// mockDB implements database.Querier for testing.
type mockDB struct {
	mu    sync.Mutex
	count int
	args  []any
}

func (m *mockDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.args = append(m.args, args...)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockDB) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func TestAsyncLogger_FlushesOnInterval(t *testing.T) {
	db := &mockDB{}
	cfg := LoggerConfig{
		BufferSize:    100,
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	}

	logger := NewAsyncLogger(db, NewStore(), cfg)
	logger.Log(context.Background(), Event{
		Action: ActionWebhookVerificationFailed,
		Source: "twilio",
	})

	// Wait for flush interval
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, logger.Close())
	assert.GreaterOrEqual(t, db.insertCount(), 1)
}

func TestAsyncLogger_FlushesOnBatchSize(t *testing.T) {
	db := &mockDB{}
	cfg := LoggerConfig{
		BufferSize:    100,
		BatchSize:     3,
		FlushInterval: 10 * time.Second,
	}

	logger := NewAsyncLogger(db, NewStore(), cfg)
	for i := 0; i < 3; i++ {
		logger.Log(context.Background(), Event{
			Action: ActionWebhookVerificationFailed,
			Source: "twilio",
		})
	}

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, logger.Close())
	assert.GreaterOrEqual(t, db.insertCount(), 1)
}

func TestAsyncLogger_DropsWhenBufferFull(t *testing.T) {
	db := &mockDB{}
	cfg := LoggerConfig{
		BufferSize:    2,
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
	}

	logger := NewAsyncLogger(db, NewStore(), cfg)
	// Send more events than buffer can hold
	for i := 0; i < 10; i++ {
		logger.Log(context.Background(), Event{
			Action: ActionWebhookVerificationFailed,
			Source: "twilio",
		})
	}

	require.NoError(t, logger.Close())
	assert.LessOrEqual(t, logger.Dropped(), int64(8))
}

func TestAsyncLogger_TagsRequestID(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{BufferSize: 10, BatchSize: 10, FlushInterval: time.Hour})

	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Log(r.Context(), VerificationFailure{Provider: "twilio", Reason: "invalid signature"}.Event())
	}))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/messages", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, logger.Close())

	db.mu.Lock()
	defer db.mu.Unlock()
	require.Len(t, db.args, 5)
	meta, ok := db.args[3].([]byte)
	require.True(t, ok)
	assert.Contains(t, string(meta), `"correlation_id":"req-abc"`)
	assert.Contains(t, string(meta), `"reason":"invalid signature"`)
}
