package rabbitmq

// Exchanges и ключи маршрутизации.
const (
	NotificationsExchange = "notifications"
	ExpiringRoutingKey    = "expiring"

	PaymentsExchange     = "payments"
	SettledRoutingKey    = "settled"
	PaymentSettledType   = "payment.settled"
	ExpiringReminderType = "subscription.expiring"
)

// QueueConfig очередь и ключ её привязки.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues очереди exchange notifications.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.expiring", RoutingKey: ExpiringRoutingKey},
	}
}

// GetPaymentQueues очереди exchange payments.
func GetPaymentQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "payments.settled", RoutingKey: SettledRoutingKey},
	}
}
