package domain

type RouterRequestSubmitEvent struct {
	Name       string            `json:"name" binding:"required"`
	RoutingKey string            `json:"routing_key" binding:"required,validate_routing_key"`
	Payload    map[string]string `json:"payload"`
}
