// Package api exposes the External-action HTTP facade (spec.md §6):
// thin Gin handlers delegating to internal collaborators, adapted from
// the teacher's handler package shape (BaseHandler, one handler struct
// per concern, constructor functions, a single SetupRouter).
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BaseHandler provides the response helpers every concern-specific
// handler embeds (adapted from handler/base.go).
type BaseHandler struct{}

// NewBaseHandler constructs a BaseHandler.
func NewBaseHandler() *BaseHandler { return &BaseHandler{} }

// ErrorResponse is the JSON shape of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendError writes a standardized error response.
func (h *BaseHandler) SendError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// SendJSON writes data with the given status code.
func (h *BaseHandler) SendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// BindJSON binds the request body to obj, wrapping bind errors.
func (h *BaseHandler) BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func headHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}
