package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/middleware"
	"cylinder-recon/internal/service"
	"cylinder-recon/pkg/logger"
	"cylinder-recon/pkg/response"
)

type RecordHandler struct {
	records   service.VerificationService
	approvals service.ApprovalService
}

func NewRecordHandler(records service.VerificationService, approvals service.ApprovalService) *RecordHandler {
	return &RecordHandler{records: records, approvals: approvals}
}

type ApproveRequest struct {
	RecordID string `json:"record_id" binding:"required"`
	Actor    string `json:"actor"`
}

type BulkRequest struct {
	RecordIDs []string `json:"record_ids" binding:"required,min=1"`
	Actor     string   `json:"actor"`
}

// ListRecords godoc
// @Summary List verification records
// @Description List the computed verification records for the organization
// @Tags records
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param kind query string false "Filter by import kind (invoice|receipt)"
// @Param status query string false "Filter by verification status"
// @Param search query string false "Search order number or customer name"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/records [get]
func (h *RecordHandler) ListRecords(c *gin.Context) {
	filter := service.ListFilter{
		Kind:   domain.ImportKind(c.Query("kind")),
		Status: domain.VerificationStatus(c.Query("status")),
		Search: c.Query("search"),
	}

	records, err := h.records.ListRecords(c.Request.Context(), middleware.OrganizationID(c), filter)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to list records")
		response.InternalError(c, "Failed to list records", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Records retrieved successfully", records)
}

// GetStats godoc
// @Summary Get verification statistics
// @Description Per-status counters over the organization's records
// @Tags records
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Success 200 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/records/stats [get]
func (h *RecordHandler) GetStats(c *gin.Context) {
	stats, err := h.records.GetStats(c.Request.Context(), middleware.OrganizationID(c))
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to compute stats")
		response.InternalError(c, "Failed to compute stats", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Stats retrieved successfully", stats)
}

// Approve godoc
// @Summary Approve a verification record
// @Description Run the approval transition for one record
// @Tags records
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body ApproveRequest true "Approval request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/records/approve [post]
func (h *RecordHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.approvals.Approve(c.Request.Context(), middleware.OrganizationID(c), req.RecordID, req.Actor)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("record_id", req.RecordID).Error("Approval failed")
		response.InternalError(c, "Approval failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, result.Summary(), result)
}

// Reject godoc
// @Summary Reject a verification record
// @Description Run the rejection transition for one record
// @Tags records
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body ApproveRequest true "Rejection request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/records/reject [post]
func (h *RecordHandler) Reject(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.approvals.Reject(c.Request.Context(), middleware.OrganizationID(c), req.RecordID, req.Actor)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("record_id", req.RecordID).Error("Rejection failed")
		response.InternalError(c, "Rejection failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, result.Summary(), result)
}

// BulkApprove godoc
// @Summary Approve multiple records
// @Description Run the approval transition per record; continues past failures
// @Tags records
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body BulkRequest true "Bulk approval request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/records/bulk-approve [post]
func (h *RecordHandler) BulkApprove(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	outcomes := h.approvals.BulkApprove(c.Request.Context(), middleware.OrganizationID(c), req.RecordIDs, req.Actor)
	response.Success(c, http.StatusOK, "Bulk approval completed", outcomes)
}

// BulkReject godoc
// @Summary Reject multiple records
// @Description Run the rejection transition per record; continues past failures
// @Tags records
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body BulkRequest true "Bulk rejection request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/records/bulk-reject [post]
func (h *RecordHandler) BulkReject(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	outcomes := h.approvals.BulkReject(c.Request.Context(), middleware.OrganizationID(c), req.RecordIDs, req.Actor)
	response.Success(c, http.StatusOK, "Bulk rejection completed", outcomes)
}

// AutoApprove godoc
// @Summary Evaluate auto-approval for a record
// @Description Run the auto-approval gate; refusal is reported, not an error
// @Tags records
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body ApproveRequest true "Auto-approval request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/records/auto-approve [post]
func (h *RecordHandler) AutoApprove(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	outcome, err := h.approvals.AutoApprove(c.Request.Context(), middleware.OrganizationID(c), req.RecordID, req.Actor)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("record_id", req.RecordID).Error("Auto-approval evaluation failed")
		response.InternalError(c, "Auto-approval evaluation failed", err.Error())
		return
	}

	message := "Auto-approval refused: " + outcome.Reason
	if outcome.Approved {
		message = "Record auto-approved"
	}
	response.Success(c, http.StatusOK, message, outcome)
}
