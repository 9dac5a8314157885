package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelegramSendPostsMessage(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "123:abc", APIURL: srv.URL}, srv.Client(), zap.NewNop())
	require.NoError(t, tg.Send(context.Background(), "555", "hello"))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "555", got.ChatID)
	assert.Equal(t, "hello", got.Text)
}

func TestTelegramSendReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "t", APIURL: srv.URL}, srv.Client(), zap.NewNop())
	err := tg.Send(context.Background(), "@nobody", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramErrorsDoNotLeakToken(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "secret-token", APIURL: "http://127.0.0.1:1"}, nil, zap.NewNop())
	err := tg.Send(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.False(t, strings.Contains(err.Error(), "secret-token"))
}

func TestTelegramBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "t", APIURL: srv.URL}, srv.Client(), zap.NewNop())
	for i := 0; i < breakerFailureThreshold+3; i++ {
		err := tg.Send(context.Background(), "1", "hi")
		assert.ErrorIs(t, err, ErrDeliveryFailed)
	}
	assert.Equal(t, int32(breakerFailureThreshold), calls.Load())
}

func TestSendRequiresRecipient(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "t"}, nil, zap.NewNop())
	assert.ErrorIs(t, tg.Send(context.Background(), " ", "hi"), ErrNoRecipient)
	assert.ErrorIs(t, NewLogNotifier(zap.NewNop()).Send(context.Background(), "", "hi"), ErrNoRecipient)
	assert.NoError(t, NewLogNotifier(zap.NewNop()).Send(context.Background(), "@x", "hi"))
}
