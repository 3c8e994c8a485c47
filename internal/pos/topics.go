package pos

const (
	TopicOrderCreated     = "pos.order.created"
	TopicOrderUpdated     = "pos.order.updated"
	TopicPaymentCompleted = "pos.payment.completed"
	TopicStockAlert       = "pos.stock.alert"
)

// Partition key = order id so every event of one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
