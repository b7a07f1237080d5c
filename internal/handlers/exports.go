package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/services"
)

type ExportsHandler struct {
	exports *services.ExportService
}

func NewExportsHandler(exports *services.ExportService) *ExportsHandler {
	return &ExportsHandler{exports: exports}
}

func (h *ExportsHandler) CreateExport(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}

	var req models.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body", err)
		return
	}
	settings, err := services.SettingsFromRequest(req)
	if err != nil {
		respondError(c, err)
		return
	}

	rec, d, err := h.exports.StartExport(c.Request.Context(), sess, projectID, settings)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := models.NewExportResponse(rec)
	for _, id := range d.Unresolved {
		resp.UnresolvedAssets = append(resp.UnresolvedAssets, id.String())
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *ExportsHandler) GetExport(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	exportID, ok := uuidParam(c, "export_id")
	if !ok {
		return
	}
	rec, err := h.exports.GetExport(c.Request.Context(), sess, exportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewExportResponse(rec))
}

func (h *ExportsHandler) EDL(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	edl, err := h.exports.EDL(c.Request.Context(), sess, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+projectID.String()+`.edl"`)
	c.String(http.StatusOK, edl)
}
