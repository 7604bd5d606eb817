package domain

// Handler receives every decoded message delivered to a consumer.
type Handler interface {
	ConsumeEvent(message string) error
}

type HandlerFunc func(message string) error

func (f HandlerFunc) ConsumeEvent(message string) error {
	return f(message)
}

// SourcedHandler is used instead of ConsumeEvent when a handler also needs
// the publishing service and the routing key of the delivery.
type SourcedHandler interface {
	Handler
	ConsumeFrom(source, routingKey, message string) error
}
