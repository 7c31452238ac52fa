package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/identity"
)

// AccessHandler manages role grants. Every route requires an actor; grant
// changes additionally require the caller to hold ADMIN.
type AccessHandler struct {
	ctl    *access.Controller
	logger *zap.Logger
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(ctl *access.Controller, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{ctl: ctl, logger: logger}
}

// Register mounts the access routes behind auth.
func (h *AccessHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/access", auth)
	{
		g.POST("/grants", h.Grant)
		g.DELETE("/grants", h.Revoke)
		g.GET("/grants/:actor", h.Roles)
	}
}

type grantRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

func (h *AccessHandler) parse(c *gin.Context) (string, access.Role, bool) {
	var req grantRequest
	if !bindJSON(c, &req) {
		return "", 0, false
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(c, h.logger, err)
		return "", 0, false
	}
	return req.Actor, role, true
}

// Grant handles POST /access/grants.
func (h *AccessHandler) Grant(c *gin.Context) {
	actor, role, ok := h.parse(c)
	if !ok {
		return
	}
	if err := h.ctl.Grant(c.Request.Context(), identity.ActorFromCtx(c), actor, role); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"actor": actor, "role": role})
}

// Revoke handles DELETE /access/grants.
func (h *AccessHandler) Revoke(c *gin.Context) {
	actor, role, ok := h.parse(c)
	if !ok {
		return
	}
	if err := h.ctl.Revoke(c.Request.Context(), identity.ActorFromCtx(c), actor, role); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Roles handles GET /access/grants/:actor.
func (h *AccessHandler) Roles(c *gin.Context) {
	actor := c.Param("actor")
	roles, err := h.ctl.Roles(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if roles == nil {
		roles = []access.Role{}
	}
	c.JSON(http.StatusOK, gin.H{"actor": actor, "roles": roles})
}
