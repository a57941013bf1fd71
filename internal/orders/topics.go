package orders

const (
	// TopicOrderEvents carries every order event; consumers switch on event_type.
	TopicOrderEvents = "order.events"

	// ExchangeOrders is the AMQP topic exchange order events are published to.
	ExchangeOrders = "orders"
)

var routingKeys = map[string]string{
	EventOrderPlaced:    "order.placed",
	EventOrderCancelled: "order.cancelled",
}

// Partition key = order_id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// RoutingKey maps an event type to its AMQP routing key.
func RoutingKey(eventType string) string {
	if k, ok := routingKeys[eventType]; ok {
		return k
	}
	return "order.unknown"
}
