// Package metrics собирает и публикует метрики Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder интерфейс сбора метрик для сервисов и обработчиков.
type Recorder interface {
	WebhookUpdate(kind string)
	Settlement(outcome string)
	Redemption(outcome string)
	ResolveRejected(reason string)
	UpstreamCall(method, outcome string, d time.Duration)
}

// Collector реализация Recorder поверх Prometheus.
type Collector struct {
	webhookUpdates  *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	resolveRejected *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_webhook_updates_total",
			Help: "Входящие обновления платформы по типу",
		}, []string{"kind"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_settlements_total",
			Help: "Применение оплат по результату",
		}, []string{"outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_magic_token_redemptions_total",
			Help: "Погашения токенов входа по результату",
		}, []string{"outcome"}),
		resolveRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_session_rejections_total",
			Help: "Отклонённые сессии по причине",
		}, []string{"reason"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_upstream_calls_total",
			Help: "Исходящие вызовы платформы по методу и результату",
		}, []string{"method", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botgate_upstream_call_seconds",
			Help:    "Длительность исходящих вызовов платформы",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.webhookUpdates,
		c.settlements,
		c.redemptions,
		c.resolveRejected,
		c.upstreamCalls,
		c.upstreamLatency,
	)
	return c
}

// WebhookUpdate учитывает классифицированное обновление.
func (c *Collector) WebhookUpdate(kind string) {
	c.webhookUpdates.WithLabelValues(kind).Inc()
}

// Settlement учитывает результат применения оплаты.
func (c *Collector) Settlement(outcome string) {
	c.settlements.WithLabelValues(outcome).Inc()
}

// Redemption учитывает результат погашения токена.
func (c *Collector) Redemption(outcome string) {
	c.redemptions.WithLabelValues(outcome).Inc()
}

// ResolveRejected учитывает отказ в сессии.
func (c *Collector) ResolveRejected(reason string) {
	c.resolveRejected.WithLabelValues(reason).Inc()
}

// UpstreamCall учитывает исходящий вызов.
func (c *Collector) UpstreamCall(method, outcome string, d time.Duration) {
	c.upstreamCalls.WithLabelValues(method, outcome).Inc()
	c.upstreamLatency.WithLabelValues(method).Observe(d.Seconds())
}

// Handler возвращает обработчик для скрейпа.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop ничего не записывает.
type Nop struct{}

func (Nop) WebhookUpdate(string) {}
func (Nop) Settlement(string) {}
func (Nop) Redemption(string) {}
func (Nop) ResolveRejected(string) {}
func (Nop) UpstreamCall(string, string, time.Duration) {}
