package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultAPIURL  = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

type TelegramConfig struct {
	Token   string
	APIURL  string
	Timeout time.Duration
}

// Telegram sends messages through the Bot API sendMessage method. Calls go
// through a circuit breaker so a dead API fails fast instead of stalling the
// reminder loop.
type Telegram struct {
	client  *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
}

func NewTelegram(cfg TelegramConfig, client *http.Client, log *zap.Logger) *Telegram {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	log = log.Named("notify.telegram")

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "telegram",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Telegram{
		client:  client,
		baseURL: fmt.Sprintf("%s/bot%s/", apiURL, cfg.Token),
		breaker: breaker,
		log:     log,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, recipient, text string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrNoRecipient
	}

	_, err := t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.call(ctx, "sendMessage", sendMessageRequest{ChatID: recipient, Text: text})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return err
}

func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, redact(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrDeliveryFailed, err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	if !out.OK {
		return fmt.Errorf("%w: telegram %d: %s", ErrDeliveryFailed, out.ErrorCode, out.Description)
	}
	return nil
}

// redact strips the request URL, which embeds the bot token, from transport
// errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
