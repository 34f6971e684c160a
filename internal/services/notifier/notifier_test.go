package notifier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/notifier"
)

type BotAPIMock struct{ mock.Mock }

func (m *BotAPIMock) SendMessage(ctx context.Context, req botapi.SendMessageRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *BotAPIMock) SendInvoice(ctx context.Context, req botapi.SendInvoiceRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *BotAPIMock) AnswerPreCheckoutQuery(ctx context.Context, req botapi.AnswerPreCheckoutQueryRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *BotAPIMock) AnswerCallbackQuery(ctx context.Context, req botapi.AnswerCallbackQueryRequest) error {
	return m.Called(ctx, req).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_LoginLinkDisablesPreview(t *testing.T) {
	api := new(BotAPIMock)
	n := notifier.New(api, "", 30*time.Minute, newNoopLogger())

	var sent botapi.SendMessageRequest
	api.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(botapi.SendMessageRequest) }).
		Return(nil)

	n.LoginLink(context.Background(), 7, "https://bot.example.com/auth/callback?token=abc", 10*time.Minute)

	require.NotNil(t, sent.LinkPreviewOptions)
	assert.True(t, sent.LinkPreviewOptions.IsDisabled)
	assert.Equal(t, int64(7), sent.ChatID)
	require.NotNil(t, sent.ReplyMarkup)
	assert.Equal(t, "https://bot.example.com/auth/callback?token=abc", sent.ReplyMarkup.InlineKeyboard[0][0].URL)
	assert.Contains(t, sent.Text, "10 мин.")
	assert.NotContains(t, sent.Text, "token=abc")
}

func TestNotifier_PaymentDelayedMentionsSupportWindow(t *testing.T) {
	api := new(BotAPIMock)
	n := notifier.New(api, "", 45*time.Minute, newNoopLogger())

	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req botapi.SendMessageRequest) bool {
		return req.ChatID == 7 && containsAll(req.Text, "синхронизация журнала", "45 мин.", "поддержку")
	})).Return(nil)

	n.PaymentDelayed(context.Background(), 7)
	api.AssertExpectations(t)
}

func TestNotifier_SendErrorsAreSwallowed(t *testing.T) {
	api := new(BotAPIMock)
	n := notifier.New(api, "", time.Minute, newNoopLogger())
	api.On("SendMessage", mock.Anything, mock.Anything).Return(botapi.ErrUpstreamTimeout)
	api.On("AnswerPreCheckoutQuery", mock.Anything, mock.Anything).Return(botapi.ErrUpstreamTimeout)

	assert.NotPanics(t, func() {
		n.Text(context.Background(), 1, "hi")
		n.PaymentConfirmed(context.Background(), 1, time.Now())
		n.PaymentRejected(context.Background(), 1)
		n.AnswerPreCheckout(context.Background(), "q", true, "")
	})
}

func TestNotifier_AnswerPreCheckout(t *testing.T) {
	tests := []struct {
		name   string
		ok     bool
		reason string
		want   botapi.AnswerPreCheckoutQueryRequest
	}{
		{
			name: "accept",
			ok:   true,
			want: botapi.AnswerPreCheckoutQueryRequest{PreCheckoutQueryID: "q1", OK: true},
		},
		{
			name:   "reject",
			ok:     false,
			reason: "tier unavailable",
			want:   botapi.AnswerPreCheckoutQueryRequest{PreCheckoutQueryID: "q1", OK: false, ErrorMessage: "tier unavailable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(BotAPIMock)
			api.On("AnswerPreCheckoutQuery", mock.Anything, tt.want).Return(nil)

			notifier.New(api, "", time.Minute, newNoopLogger()).
				AnswerPreCheckout(context.Background(), "q1", tt.ok, tt.reason)
			api.AssertExpectations(t)
		})
	}
}

func TestNotifier_Invoice(t *testing.T) {
	api := new(BotAPIMock)
	n := notifier.New(api, "provider", time.Minute, newNoopLogger())

	payment := &models.PaymentRecord{ID: "pay-1", Amount: 1500, Currency: "USD"}
	tier := &models.Tier{Name: "Pro", Interval: models.IntervalYear}

	api.On("SendInvoice", mock.Anything, mock.MatchedBy(func(req botapi.SendInvoiceRequest) bool {
		return req.Payload == "pay-1" && req.ProviderToken == "provider" &&
			req.Currency == "USD" && req.Prices[0].Amount == 1500
	})).Return(nil).Once()
	require.NoError(t, n.Invoice(context.Background(), 7, payment, tier))

	api.On("SendInvoice", mock.Anything, mock.Anything).Return(errors.New("boom")).Once()
	assert.Error(t, n.Invoice(context.Background(), 7, payment, tier))
}

func TestNotifier_ExpiringReminder(t *testing.T) {
	reminder := models.ExpiringReminder{IdentityID: "id-1", ExternalID: 7, TierName: "Pro", ExpiresAt: time.Now()}

	tests := []struct {
		name    string
		sendErr error
		wantErr bool
	}{
		{"delivered", nil, false},
		{"permanent rejection", &botapi.APIError{Method: "sendMessage", Code: 403, Description: "blocked"}, false},
		{"timeout", botapi.ErrUpstreamTimeout, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(BotAPIMock)
			api.On("SendMessage", mock.Anything, mock.Anything).Return(tt.sendErr)

			err := notifier.New(api, "", time.Minute, newNoopLogger()).
				ExpiringReminder(context.Background(), reminder)
			if tt.wantErr {
				assert.ErrorIs(t, err, botapi.ErrUpstreamTimeout)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
