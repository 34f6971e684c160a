// Package botapi клиент Bot API платформы сообщений и типы входящих обновлений.
//
// Каждый вызов ограничен собственным дедлайном. Таймаут возвращается как
// ErrUpstreamTimeout и не повторяется внутри вызова.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/botgate/internal/metrics"
)

// ErrUpstreamTimeout вызов платформы не уложился в дедлайн.
var ErrUpstreamTimeout = errors.New("upstream timeout")

// APIError ответ платформы с ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("botapi %s: %d %s", e.Method, e.Code, e.Description)
}

// Client клиент Bot API.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	metrics    metrics.Recorder
}

// NewClient создаёт клиент. timeout применяется к каждому вызову.
func NewClient(baseURL, token string, timeout time.Duration, rec metrics.Recorder) *Client {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
		metrics:    rec,
	}
}

// SendMessage отправляет текстовое сообщение.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.call(ctx, "sendMessage", req)
}

// SendInvoice выставляет счёт.
func (c *Client) SendInvoice(ctx context.Context, req SendInvoiceRequest) error {
	return c.call(ctx, "sendInvoice", req)
}

// AnswerPreCheckoutQuery отвечает на запрос перед списанием.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, req AnswerPreCheckoutQueryRequest) error {
	return c.call(ctx, "answerPreCheckoutQuery", req)
}

// AnswerCallbackQuery снимает индикатор загрузки с кнопки.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	return c.call(ctx, "answerCallbackQuery", req)
}

func (c *Client) call(ctx context.Context, method string, body any) (err error) {
	op := "botapi." + method
	started := time.Now()
	defer func() {
		c.metrics.UpstreamCall(method, outcome(err), time.Since(started))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrUpstreamTimeout)
		}
		return fmt.Errorf("%s: %w", op, redact(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrUpstreamTimeout)
		}
		return fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, err)
	}
	if !apiResp.OK {
		return &APIError{Method: method, Code: apiResp.ErrorCode, Description: apiResp.Description}
	}
	return nil
}

// redact убирает URL с токеном бота из ошибки транспорта.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.As(err, &apiErr):
		return "rejected"
	default:
		return "error"
	}
}
