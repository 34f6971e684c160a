package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/dispatcher"
	"github.com/magabrotheeeer/botgate/internal/services/payment"
)

type PaymentsMock struct{ mock.Mock }

func (m *PaymentsMock) PreCheckout(ctx context.Context, req payment.PreCheckoutRequest) (bool, string) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.String(1)
}

func (m *PaymentsMock) Settle(ctx context.Context, st models.Settlement) error {
	return m.Called(ctx, st).Error(0)
}

func (m *PaymentsMock) SettlementDelayed(ctx context.Context, chatID int64) {
	m.Called(ctx, chatID)
}

type CommandsMock struct{ mock.Mock }

func (m *CommandsMock) HandleCommand(ctx context.Context, msg *botapi.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *CommandsMock) HandleCallback(ctx context.Context, q *botapi.CallbackQuery) error {
	return m.Called(ctx, q).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	preCheckoutBody = `{"update_id":1,"pre_checkout_query":{"id":"q1","from":{"id":42,"first_name":"Ada"},
		"currency":"USD","total_amount":1000,"invoice_payload":"pay-1"}}`
	paymentBody = `{"update_id":2,"message":{"message_id":5,"chat":{"id":7,"type":"private"},"from":{"id":42},
		"successful_payment":{"currency":"USD","total_amount":1000,"invoice_payload":"pay-1",
		"telegram_payment_charge_id":"tg-1","provider_payment_charge_id":"pr-1"}}}`
	commandBody  = `{"update_id":3,"message":{"message_id":6,"chat":{"id":7},"from":{"id":42},"text":"/login"}}`
	callbackBody = `{"update_id":4,"callback_query":{"id":"cb-1","from":{"id":42},"data":"buy:tier-1"}}`
	textBody     = `{"update_id":5,"message":{"message_id":7,"chat":{"id":7},"from":{"id":42},"text":"hello"}}`
	stickerBody  = `{"update_id":6,"edited_message":{"message_id":8}}`
)

func newDispatcher(t *testing.T, opts dispatcher.Options) (*dispatcher.Dispatcher, *PaymentsMock, *CommandsMock) {
	t.Helper()
	payments := new(PaymentsMock)
	cmds := new(CommandsMock)
	d, err := dispatcher.New(payments, cmds, opts, nil, newNoopLogger())
	require.NoError(t, err)
	return d, payments, cmds
}

func TestClassify(t *testing.T) {
	decoder, err := dispatcher.NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want dispatcher.Kind
	}{
		{"pre-checkout", preCheckoutBody, dispatcher.KindPreCheckout},
		{"payment success", paymentBody, dispatcher.KindPaymentSuccess},
		{"command", commandBody, dispatcher.KindCommand},
		{"callback", callbackBody, dispatcher.KindCallback},
		{"plain text", textBody, dispatcher.KindUnknown},
		{"unsupported update", stickerBody, dispatcher.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := decoder.Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dispatcher.Classify(update))
		})
	}
	assert.Equal(t, dispatcher.KindUnknown, dispatcher.Classify(nil))
}

func TestDecoder_RejectsInvalidEnvelope(t *testing.T) {
	decoder, err := dispatcher.NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"missing update id", `{"message":{"chat":{"id":1}}}`},
		{"string update id", `{"update_id":"1"}`},
		{"message without chat", `{"update_id":1,"message":{"text":"/start"}}`},
		{"payment without payload", `{"update_id":1,"message":{"chat":{"id":1},
			"successful_payment":{"currency":"USD","total_amount":1}}}`},
		{"zero amount", `{"update_id":1,"message":{"chat":{"id":1},
			"successful_payment":{"currency":"USD","total_amount":0,"invoice_payload":"p"}}}`},
		{"pre-checkout without id", `{"update_id":1,"pre_checkout_query":{"from":{"id":1},
			"currency":"USD","total_amount":1,"invoice_payload":"p"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decoder.Decode([]byte(tt.body))
			assert.ErrorIs(t, err, dispatcher.ErrInvalidUpdate)
		})
	}
}

func TestDispatcher_ProcessRoutesEachKind(t *testing.T) {
	t.Run("pre-checkout", func(t *testing.T) {
		d, payments, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})
		payments.On("PreCheckout", mock.Anything, payment.PreCheckoutRequest{
			QueryID: "q1", PaymentID: "pay-1", Amount: 1000, Currency: "USD",
		}).Return(true, "")

		require.NoError(t, d.Process(context.Background(), []byte(preCheckoutBody)))
		payments.AssertExpectations(t)
	})

	t.Run("payment success", func(t *testing.T) {
		d, payments, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})
		payments.On("Settle", mock.Anything, models.Settlement{
			PaymentID: "pay-1", Amount: 1000, Currency: "USD", GatewayRef: "tg-1", ChatID: 7,
		}).Return(nil)

		require.NoError(t, d.Process(context.Background(), []byte(paymentBody)))
		payments.AssertExpectations(t)
	})

	t.Run("command", func(t *testing.T) {
		d, _, cmds := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})
		cmds.On("HandleCommand", mock.Anything, mock.MatchedBy(func(m *botapi.Message) bool {
			return m.Text == "/login" && m.Chat.ID == 7
		})).Return(nil)

		require.NoError(t, d.Process(context.Background(), []byte(commandBody)))
		cmds.AssertExpectations(t)
	})

	t.Run("callback error is returned", func(t *testing.T) {
		d, _, cmds := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})
		cmds.On("HandleCallback", mock.Anything, mock.Anything).Return(errors.New("boom"))

		assert.Error(t, d.Process(context.Background(), []byte(callbackBody)))
	})

	t.Run("unknown is dropped", func(t *testing.T) {
		d, payments, cmds := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})

		require.NoError(t, d.Process(context.Background(), []byte(textBody)))
		payments.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
		cmds.AssertNotCalled(t, "HandleCommand", mock.Anything, mock.Anything)
	})
}

func TestDispatcher_SubmitDoesNotWaitForProcessing(t *testing.T) {
	d, payments, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 2, ProcessingTimeout: time.Second})

	release := make(chan struct{})
	payments.On("Settle", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	start := time.Now()
	require.NoError(t, d.Submit(context.Background(), []byte(paymentBody)))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	payments.AssertNumberOfCalls(t, "Settle", 1)
}

func TestDispatcher_DetachedFromRequestContext(t *testing.T) {
	d, payments, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 1, ProcessingTimeout: time.Second})

	var canceled, called atomic.Bool
	payments.On("Settle", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			time.Sleep(20 * time.Millisecond)
			called.Store(true)
			canceled.Store(ctx.Err() != nil)
		}).
		Return(nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Submit(reqCtx, []byte(paymentBody)))
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, d.Shutdown(ctx))

	assert.True(t, called.Load())
	assert.False(t, canceled.Load())
}

func TestDispatcher_PanicIsRecovered(t *testing.T) {
	d, _, cmds := newDispatcher(t, dispatcher.Options{MaxInFlight: 1, ProcessingTimeout: time.Second})
	cmds.On("HandleCommand", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("handler exploded") }).
		Return(nil)

	require.NoError(t, d.Submit(context.Background(), []byte(commandBody)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Shutdown(ctx))
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	d, payments, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 2, ProcessingTimeout: 2 * time.Second})

	var inFlight, peak atomic.Int32
	payments.On("Settle", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return(nil)

	for i := 0; i < 8; i++ {
		require.NoError(t, d.Submit(context.Background(), []byte(paymentBody)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	assert.LessOrEqual(t, peak.Load(), int32(2))
	payments.AssertNumberOfCalls(t, "Settle", 8)
}

func TestDispatcher_RejectsAfterShutdown(t *testing.T) {
	d, _, _ := newDispatcher(t, dispatcher.Options{MaxInFlight: 1})
	require.NoError(t, d.Shutdown(context.Background()))

	err := d.Submit(context.Background(), []byte(commandBody))
	assert.ErrorIs(t, err, dispatcher.ErrShuttingDown)
}

func TestDispatcher_ProcessingTimeoutStartsAfterSlot(t *testing.T) {
	d, payments, cmds := newDispatcher(t, dispatcher.Options{
		MaxInFlight:       1,
		ProcessingTimeout: 200 * time.Millisecond,
		QueueTimeout:      2 * time.Second,
	})

	started := make(chan struct{})
	cmds.On("HandleCommand", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			time.Sleep(150 * time.Millisecond)
		}).
		Return(nil)

	var budget atomic.Int64
	payments.On("Settle", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			deadline, ok := args.Get(0).(context.Context).Deadline()
			if ok {
				budget.Store(int64(time.Until(deadline)))
			}
		}).
		Return(nil)

	require.NoError(t, d.Submit(context.Background(), []byte(commandBody)))
	<-started
	require.NoError(t, d.Submit(context.Background(), []byte(paymentBody)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	payments.AssertNumberOfCalls(t, "Settle", 1)
	assert.Greater(t, time.Duration(budget.Load()), 150*time.Millisecond)
	payments.AssertNotCalled(t, "SettlementDelayed", mock.Anything, mock.Anything)
}

func TestDispatcher_QueuedPaymentDroppedSendsDelayed(t *testing.T) {
	d, payments, cmds := newDispatcher(t, dispatcher.Options{
		MaxInFlight:       1,
		ProcessingTimeout: time.Second,
		QueueTimeout:      50 * time.Millisecond,
	})

	started := make(chan struct{})
	release := make(chan struct{})
	cmds.On("HandleCommand", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil)

	delayed := make(chan struct{})
	payments.On("SettlementDelayed", mock.Anything, int64(7)).
		Run(func(mock.Arguments) { close(delayed) }).
		Once()

	require.NoError(t, d.Submit(context.Background(), []byte(commandBody)))
	<-started
	require.NoError(t, d.Submit(context.Background(), []byte(paymentBody)))

	select {
	case <-delayed:
	case <-time.After(time.Second):
		t.Fatal("delayed message was not sent for a dropped payment")
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	payments.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	payments.AssertExpectations(t)
}

func TestDispatcher_QueuedCommandDroppedQuietly(t *testing.T) {
	d, payments, cmds := newDispatcher(t, dispatcher.Options{
		MaxInFlight:       1,
		ProcessingTimeout: time.Second,
		QueueTimeout:      20 * time.Millisecond,
	})

	started := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	cmds.On("HandleCommand", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			if once.CompareAndSwap(false, true) {
				close(started)
				<-release
			}
		}).
		Return(nil)

	require.NoError(t, d.Submit(context.Background(), []byte(commandBody)))
	<-started
	require.NoError(t, d.Submit(context.Background(), []byte(commandBody)))
	time.Sleep(100 * time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	cmds.AssertNumberOfCalls(t, "HandleCommand", 1)
	payments.AssertNotCalled(t, "SettlementDelayed", mock.Anything, mock.Anything)
}
