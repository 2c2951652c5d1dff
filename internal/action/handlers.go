package action

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meghal86/guardian/internal/validation"
)

// Handler provides HTTP endpoints for mutating actions.
type Handler struct {
	service *Service
}

// NewHandler creates a new action handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up action routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/actions/revoke", h.Revoke)
}

// Revoke handles POST /v1/actions/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.Address = validation.SanitizeAddress(req.Address)
	req.Spender = validation.SanitizeAddress(req.Spender)
	req.Token = validation.SanitizeAddress(req.Token)
	if req.Amount == "" {
		req.Amount = "0"
	}
	if req.Network == "" {
		req.Network = "ethereum"
	}

	if errs := validation.Validate(
		validation.Required("idempotencyKey", req.IdempotencyKey),
		validation.MaxLength("idempotencyKey", req.IdempotencyKey, 128),
		validation.Required("address", req.Address),
		validation.ValidAddress("address", req.Address),
		validation.Required("spender", req.Spender),
		validation.ValidAddress("spender", req.Spender),
		validation.Required("token", req.Token),
		validation.ValidAddress("token", req.Token),
		validation.ValidNetwork("network", req.Network),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	// Revokes zero the allowance; any other amount is a different
	// action this endpoint does not perform.
	if req.Amount != "0" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Revoke actions must have amount 0",
		})
		return
	}

	result, err := h.service.Revoke(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  StatusConflict,
				"error":   "conflict",
				"message": "Idempotency key was already used for a different action",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "revoke_failed",
			"message": "Failed to submit revoke transaction",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
