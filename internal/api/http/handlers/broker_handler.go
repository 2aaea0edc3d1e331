package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ghe-token-broker/internal/api/gateway"
	"github.com/spec-kit/ghe-token-broker/internal/observability"
)

// BrokerHandler adapts fiber requests to the gateway router.
type BrokerHandler struct {
	router *gateway.Router
}

// NewBrokerHandler constructs handler.
func NewBrokerHandler(router *gateway.Router) *BrokerHandler {
	return &BrokerHandler{router: router}
}

// Handle serves OPTIONS, GET and POST on the broker root.
func (h *BrokerHandler) Handle(c *fiber.Ctx) error {
	headers := make(map[string]string)
	for k, v := range c.GetReqHeaders() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	requestID, _ := c.Locals(observability.RequestIDKey).(string)

	resp := h.router.Handle(c.UserContext(), gateway.Request{
		Method:    c.Method(),
		Query:     c.Queries(),
		Headers:   headers,
		Body:      string(c.Body()),
		RequestID: requestID,
	})

	for k, v := range resp.Headers {
		c.Set(k, v)
	}
	return c.Status(resp.StatusCode).SendString(resp.Body)
}
