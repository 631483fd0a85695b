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

type ImportHandler struct {
	imports service.ImportService
}

func NewImportHandler(imports service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Upload godoc
// @Summary Upload an invoice or receipt CSV
// @Description Parse and store a CSV export as a pending import document; auto-approval runs per derived record
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param X-Organization-ID header string true "Organization ID"
// @Param kind formData string true "Import kind (invoice|receipt)"
// @Param uploaded_by formData string false "Uploader identity"
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/imports [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	kind := domain.ImportKind(c.PostForm("kind"))
	if kind != domain.KindInvoice && kind != domain.KindReceipt {
		response.BadRequest(c, "Invalid kind", "Use 'invoice' or 'receipt'")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "Missing file", err.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "Unreadable file", err.Error())
		return
	}
	defer file.Close()

	result, err := h.imports.UploadDocument(
		c.Request.Context(), middleware.OrganizationID(c),
		kind, c.PostForm("uploaded_by"), file,
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("filename", fileHeader.Filename).Error("Import upload failed")
		response.InternalError(c, "Import upload failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Import stored successfully", result)
}
