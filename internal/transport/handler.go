// Package transport is the coordinator's HTTP surface: the inbound
// /fetch handler peers and clients call, and the outbound client Core
// uses to forward a request to a key's owner.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sfdc/internal/core"
)

// Fetcher is the subset of *core.Core the handler depends on, so tests
// can substitute a fake Core without standing up a real ring/dispatcher.
type Fetcher interface {
	Fetch(ctx context.Context, key string, params map[string]any, forceThisNode bool) (any, error)
	SelfIdentity() string
}

// fetchRequest is the wire body for POST /fetch.
type fetchRequest struct {
	Key    string         `json:"key" binding:"required"`
	Params map[string]any `json:"params"`
}

// Handler mounts the coordinator's routes on a Gin engine.
type Handler struct {
	core Fetcher
}

// NewHandler creates a Handler bound to core.
func NewHandler(c Fetcher) *Handler {
	return &Handler{core: c}
}

// NewRouter builds the engine the teacher's middleware convention calls
// for: gin.New() plus explicit Logger/Recovery, never gin.Default().
func NewRouter(c Fetcher) *gin.Engine {
	r := gin.New()
	r.Use(Logger(c.SelfIdentity()), Recovery())

	h := NewHandler(c)
	r.POST("/fetch", h.Fetch)
	r.GET("/health", h.Health)
	return r
}

// Fetch handles POST /fetch. It always calls Core.Fetch with
// forceThisNode=true: an inbound request, by definition, has already
// been routed to its owner (either by the caller or by another peer's
// outbound forward), so this handler must never forward again — that is
// what prevents forwarding loops (spec scenario S5).
func (h *Handler) Fetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  string(core.KindBadRequest),
			"detail": err.Error(),
		})
		return
	}

	val, err := h.core.Fetch(c.Request.Context(), req.Key, req.Params, true)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, val)
}

// Health reports this node's identity — useful for load balancers and
// for the admin CLI's connectivity checks.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "self": h.core.SelfIdentity()})
}

func writeError(c *gin.Context, err error) {
	var e *core.Error
	kind := core.KindUserFetchFailed
	detail := err.Error()
	if errors.As(err, &e) {
		kind = e.Kind
		detail = e.Detail
	}

	c.JSON(statusFor(kind), gin.H{
		"error":  string(kind),
		"detail": detail,
	})
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindNoMembers, core.KindDiscoveryLost:
		return http.StatusServiceUnavailable
	case core.KindOwnerUnreachable:
		return http.StatusBadGateway
	case core.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
