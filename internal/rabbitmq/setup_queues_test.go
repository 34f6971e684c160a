package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueues(t *testing.T) {
	notifications := GetNotificationQueues()
	payments := GetPaymentQueues()

	require.NotEmpty(t, notifications, "queues list should not be empty")
	require.NotEmpty(t, payments, "queues list should not be empty")

	assert.Equal(t, "notifications.expiring", notifications[0].QueueName)
	assert.Equal(t, ExpiringRoutingKey, notifications[0].RoutingKey)
	assert.Equal(t, "payments.settled", payments[0].QueueName)
	assert.Equal(t, SettledRoutingKey, payments[0].RoutingKey)

	// Имена очередей уникальны
	seen := map[string]bool{}
	for _, q := range append(notifications, payments...) {
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true
	}
}
