package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
)

// statusOf maps a fault code to its HTTP status.
func statusOf(code fault.Code) int {
	switch code {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.DuplicateRecord, fault.InvalidTransition, fault.Conflict:
		return http.StatusConflict
	case fault.PermissionDenied:
		return http.StatusForbidden
	case fault.MalformedInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Faults carry their code and details; anything else
// is logged and hidden behind a 500.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	fe, ok := fault.As(err)
	if !ok {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": fe.Error(), "code": fe.Code}
	switch fe.Code {
	case fault.InvalidTransition:
		body["expected"] = fe.Expected
		body["actual"] = fe.Actual
	case fault.PermissionDenied:
		body["actor"] = fe.Actor
		body["role"] = fe.Role
	}
	c.JSON(statusOf(fe.Code), body)
}

// bindJSON decodes the request body into v and writes a 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
			"code":  fault.MalformedInput,
		})
		return false
	}
	return true
}
