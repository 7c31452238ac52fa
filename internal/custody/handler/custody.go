package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/custody/service"
	"github.com/fedegimenez/inmate-state-ledger/internal/identity"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// CustodyHandler exposes the custody operations over HTTP.
type CustodyHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewCustodyHandler creates a new CustodyHandler.
func NewCustodyHandler(svc *service.Service, logger *zap.Logger) *CustodyHandler {
	return &CustodyHandler{svc: svc, logger: logger}
}

// Register mounts the custody routes. Writes go through auth, which must
// resolve the calling actor.
func (h *CustodyHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/custody")
	{
		g.GET("/:id", h.View)

		w := g.Group("", auth)
		w.POST("/intake", h.Intake)
		w.POST("/transfer", h.OrderTransfer)
		w.POST("/arrival", h.Arrive)
		w.POST("/sanction", h.ApplySanction)
		w.POST("/sanction/fulfill", h.FulfillSanction)
		w.POST("/program/start", h.StartProgram)
		w.POST("/program/end", h.EndProgram)
		w.POST("/release", h.Release)
		w.POST("/medical-report", h.MedicalReport)
	}
}

type intakeRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type transferRequest struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Description string `json:"description"`
}

type arrivalRequest struct {
	ID          string `json:"id"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// Intake handles POST /custody/intake.
func (h *CustodyHandler) Intake(c *gin.Context) {
	var req intakeRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.Intake(c.Request.Context(), identity.ActorFromCtx(c), service.IntakeInput{
		HumanID:     req.ID,
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
	})
	h.respond(c, http.StatusCreated, rec, err)
}

// OrderTransfer handles POST /custody/transfer.
func (h *CustodyHandler) OrderTransfer(c *gin.Context) {
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.OrderTransfer(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Destination, req.Description)
	h.respond(c, http.StatusOK, rec, err)
}

// Arrive handles POST /custody/arrival.
func (h *CustodyHandler) Arrive(c *gin.Context) {
	var req arrivalRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.Arrive(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Location, req.Description)
	h.respond(c, http.StatusOK, rec, err)
}

type sanctionRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type fulfillRequest struct {
	ID     string `json:"id"`
	Detail string `json:"detail"`
}

type programStartRequest struct {
	ID          string `json:"id"`
	ProgramName string `json:"programName"`
}

type programEndRequest struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

type releaseRequest struct {
	ID     string `json:"id"`
	Ruling string `json:"ruling"`
}

type medicalReportRequest struct {
	ID     string `json:"id"`
	Report string `json:"report"`
}

// ApplySanction handles POST /custody/sanction.
func (h *CustodyHandler) ApplySanction(c *gin.Context) {
	var req sanctionRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.ApplySanction(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Reason)
	h.respond(c, http.StatusOK, rec, err)
}

// FulfillSanction handles POST /custody/sanction/fulfill.
func (h *CustodyHandler) FulfillSanction(c *gin.Context) {
	var req fulfillRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.FulfillSanction(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Detail)
	h.respond(c, http.StatusOK, rec, err)
}

// StartProgram handles POST /custody/program/start.
func (h *CustodyHandler) StartProgram(c *gin.Context) {
	var req programStartRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.StartProgram(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.ProgramName)
	h.respond(c, http.StatusOK, rec, err)
}

// EndProgram handles POST /custody/program/end.
func (h *CustodyHandler) EndProgram(c *gin.Context) {
	var req programEndRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.EndProgram(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Outcome)
	h.respond(c, http.StatusOK, rec, err)
}

// Release handles POST /custody/release.
func (h *CustodyHandler) Release(c *gin.Context) {
	var req releaseRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.Release(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Ruling)
	h.respond(c, http.StatusOK, rec, err)
}

// MedicalReport handles POST /custody/medical-report.
func (h *CustodyHandler) MedicalReport(c *gin.Context) {
	var req medicalReportRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.MedicalReport(c.Request.Context(), identity.ActorFromCtx(c), req.ID, req.Report)
	h.respond(c, http.StatusOK, rec, err)
}

// View handles GET /custody/:id.
func (h *CustodyHandler) View(c *gin.Context) {
	view, err := h.svc.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CustodyHandler) respond(c *gin.Context, status int, rec *ledger.Record, err error) {
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, rec)
}
