package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// AuthorizeURLer builds the identity provider authorize URL.
type AuthorizeURLer interface {
	AuthCodeURL(state string) string
}

// LoginHandler starts the OAuth flow by redirecting the browser to the provider.
type LoginHandler struct {
	provider AuthorizeURLer
}

// NewLoginHandler constructs handler.
func NewLoginHandler(provider AuthorizeURLer) *LoginHandler {
	return &LoginHandler{provider: provider}
}

// Start handles GET /login.
func (h *LoginHandler) Start(c *fiber.Ctx) error {
	if h.provider == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "identity provider not configured")
	}
	return c.Redirect(h.provider.AuthCodeURL(""), http.StatusFound)
}
