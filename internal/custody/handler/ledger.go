package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// LedgerHandler exposes read-only HTTP endpoints over the ledger store.
type LedgerHandler struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store ledger.Store, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{store: store, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/events/:id", h.GetEvent)
	}
}

// Overview handles GET /ledger and returns the number of records and events.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	events, err := h.store.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	subjects, err := h.store.Subjects(ctx)
	if err != nil {
		h.logger.Error("ledger Subjects", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": len(subjects),
		"events":  events,
	})
}

// Verify handles GET /ledger/verify. It walks every record's hash chain and
// reports integrity; a failed check is a 200 with valid=false.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := ledger.Verify(c.Request.Context(), h.store)
	if err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"records": report.Records,
		"events":  report.Events,
		"root":    report.Root,
	})
}

// GetEvent handles GET /ledger/events/:id and returns a single event.
func (h *LedgerHandler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	ev, err := h.store.Event(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}
