package messaging

const (
	TopicOrderPlaced = "order.placed"

	GroupOrderNotifier = "order-notifier"
)
