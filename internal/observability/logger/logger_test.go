package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)

	log, err := New(nil, Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, obscontext.ActorOperator, "111")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "operator", fields["actor_type"])
	assert.Equal(t, "111", fields["actor_id"])
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestGormLoggerDropsParams(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE a = ?", "secret")
	assert.Equal(t, "SELECT 1 WHERE a = ?", sql)
	assert.Nil(t, params)
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{"insert into subscribers (customer_no) values (?)", "INSERT", "subscribers"},
		{`INSERT INTO "subscribers" (customer_no) VALUES (?) ON CONFLICT (customer_no) DO UPDATE SET name = excluded.name`, "UPSERT", "subscribers"},
		{"INSERT INTO `custom_cmds` (cmd, reply) VALUES (?, ?) ON DUPLICATE KEY UPDATE reply = VALUES(reply)", "UPSERT", "custom_cmds"},
		{"UPDATE subscribers SET amount_paid = amount_paid + ? WHERE customer_no = ?", "UPDATE", "subscribers"},
		{"SELECT * FROM payments WHERE customer_no = ?", "SELECT", "payments"},
		{"DELETE FROM reminder_jobs WHERE customer_no = ?", "DELETE", "reminder_jobs"},
		{"", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestGormLoggerTraceSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{Base: zap.New(core), Level: gormlogger.Warn})

	fc := func() (string, int64) { return "SELECT * FROM subscribers WHERE customer_no = ?", 0 }
	l.Trace(context.Background(), time.Now(), fc, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "sql.statement", entry.Message)
	assert.Equal(t, "subscribers", entry.ContextMap()["table"])
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{Base: zap.New(core), Level: gormlogger.Warn})

	l.Info(context.Background(), "skipped")
	l.Warn(context.Background(), "kept")
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)

	silent := l.LogMode(gormlogger.Silent)
	silent.Warn(context.Background(), "skipped")
	assert.Equal(t, 1, logs.Len())
}

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{Base: zap.New(core)}))
	r.GET("/api/subscribers/:customer_no", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subscribers/C001", nil))
	generated := rec.Header().Get("X-Request-Id")
	_, err := ulid.ParseStrict(generated)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/subscribers/C001", nil)
	req.Header.Set("X-Request-Id", "upstream-7")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-7", rec.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/api/subscribers/C001", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get("X-Request-Id"), 26)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, "/api/subscribers/:customer_no", entries[0].ContextMap()["route"])
	assert.Equal(t, generated, entries[0].ContextMap()["request_id"])
}
