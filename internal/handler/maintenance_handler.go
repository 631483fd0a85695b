package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cylinder-recon/internal/middleware"
	"cylinder-recon/internal/service"
	"cylinder-recon/pkg/logger"
	"cylinder-recon/pkg/response"
)

type MaintenanceHandler struct {
	maintenance service.MaintenanceService
}

func NewMaintenanceHandler(maintenance service.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance}
}

type RestoreRequest struct {
	OrderNumber string `json:"order_number" binding:"required"`
}

type ReassignRequest struct {
	OldOrderNumber  string `json:"old_order_number" binding:"required"`
	NewOrderNumber  string `json:"new_order_number" binding:"required"`
	CustomerPattern string `json:"customer_pattern"`
}

// RestoreScans godoc
// @Summary Restore rejected scans
// @Description Set an order's rejected scans back to pending. Warehouse rows deleted during rejection are not resurrected.
// @Tags scans
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body RestoreRequest true "Restore request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/scans/restore [post]
func (h *MaintenanceHandler) RestoreScans(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	restored, err := h.maintenance.RestoreRejectedScans(c.Request.Context(), middleware.OrganizationID(c), req.OrderNumber)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("order_number", req.OrderNumber).Error("Restore failed")
		response.InternalError(c, "Restore failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Scans restored successfully", gin.H{"restored": restored})
}

// ReassignOrder godoc
// @Summary Reassign scans to a different order number
// @Description Re-key scans from one order number to another, optionally scoped to a customer-name pattern
// @Tags scans
// @Accept json
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param request body ReassignRequest true "Reassign request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/scans/reassign [post]
func (h *MaintenanceHandler) ReassignOrder(c *gin.Context) {
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	moved, err := h.maintenance.ReassignOrderNumber(
		c.Request.Context(), middleware.OrganizationID(c),
		req.OldOrderNumber, req.NewOrderNumber, req.CustomerPattern,
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithFields(map[string]interface{}{
			"old_order": req.OldOrderNumber,
			"new_order": req.NewOrderNumber,
		}).Error("Reassign failed")
		response.InternalError(c, "Reassign failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Scans reassigned successfully", gin.H{"moved": moved})
}
