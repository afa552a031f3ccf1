package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/settlement-closer/internal/api_gateway/middleware"
	"github.com/settlement-closer/internal/api_gateway/service"
	"github.com/settlement-closer/internal/domain/settlement"
)

// SettlementHandler handles HTTP requests for closing settlements
type SettlementHandler struct {
	settlementService service.SettlementService
	logger            *slog.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(logger *slog.Logger, settlementService service.SettlementService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		logger:            logger,
	}
}

// Close runs the close synchronously. Repeating the call for a closed
// settlement returns the stored result with replayed set.
func (h *SettlementHandler) Close(c *gin.Context) {
	settlementID, ok := h.parseSettlementID(c)
	if !ok {
		return
	}

	outcome, err := h.settlementService.CloseSettlement(
		c.Request.Context(),
		settlementID,
		middleware.GetUserID(c),
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		h.logFailure(c, "Failed to close settlement", settlementID, err)
		RespondWithDomainError(c, err)
		return
	}

	RespondOK(c, mapOutcomeToResponse(outcome))
}

// RequestClose queues the close for the settlement processor
func (h *SettlementHandler) RequestClose(c *gin.Context) {
	settlementID, ok := h.parseSettlementID(c)
	if !ok {
		return
	}

	request, err := h.settlementService.RequestClose(
		c.Request.Context(),
		settlementID,
		middleware.GetUserID(c),
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		h.logFailure(c, "Failed to request settlement close", settlementID, err)
		RespondWithDomainError(c, err)
		return
	}

	RespondAccepted(c, mapCloseRequestToResponse(request))
}

// GetSnapshot returns the snapshot written when the settlement closed
func (h *SettlementHandler) GetSnapshot(c *gin.Context) {
	settlementID, ok := h.parseSettlementID(c)
	if !ok {
		return
	}

	snap, err := h.settlementService.GetSnapshot(c.Request.Context(), settlementID, middleware.GetUserID(c))
	if err != nil {
		h.logFailure(c, "Failed to get settlement snapshot", settlementID, err)
		RespondWithDomainError(c, err)
		return
	}

	RespondOK(c, mapSnapshotToResponse(snap))
}

func (h *SettlementHandler) parseSettlementID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		h.logger.Warn("Invalid settlement ID", "settlement_id", raw, "correlation_id", middleware.GetCorrelationID(c))
		RespondBadRequest(c, "Invalid settlement ID")
		return uuid.Nil, false
	}
	return id, true
}

// logFailure keeps expected rejections out of the error log
func (h *SettlementHandler) logFailure(c *gin.Context, msg string, settlementID uuid.UUID, err error) {
	attrs := []any{
		"settlement_id", settlementID.String(),
		"user_id", middleware.GetUserID(c),
		"correlation_id", middleware.GetCorrelationID(c),
		"error", err,
	}
	if settlement.IsValidationError(err) || settlement.ReasonCode(err) == settlement.ReasonSnapshotNotFound {
		h.logger.Info(msg, append(attrs, "reason_code", settlement.ReasonCode(err))...)
		return
	}
	h.logger.Error(msg, attrs...)
}
