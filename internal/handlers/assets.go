package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/services"
)

// maxUploadSize bounds a single media upload.
const maxUploadSize = 500 << 20

type AssetsHandler struct {
	editor *services.EditorService
}

func NewAssetsHandler(editor *services.EditorService) *AssetsHandler {
	return &AssetsHandler{editor: editor}
}

func (h *AssetsHandler) ListAssets(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	workspaceID, ok := uuidParam(c, "workspace_id")
	if !ok {
		return
	}
	assets, err := h.editor.ListAssets(c.Request.Context(), sess, workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AssetListResponse{Assets: assets})
}

// UploadAsset accepts a multipart form with a "file" part and optional
// "name" and "project_id" fields.
func (h *AssetsHandler) UploadAsset(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	workspaceID, ok := uuidParam(c, "workspace_id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file", err)
		return
	}

	var projectID *uuid.UUID
	if raw := c.PostForm("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid project_id", err)
			return
		}
		projectID = &id
	}

	body, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "failed to read file", err)
		return
	}
	defer body.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	asset, err := h.editor.UploadAsset(c.Request.Context(), sess, media.File{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
		Body:        body,
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Name:        c.PostForm("name"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, asset)
}

// DeleteAsset removes an asset. ?force=true detaches it from open timelines
// instead of refusing.
func (h *AssetsHandler) DeleteAsset(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	assetID, ok := uuidParam(c, "asset_id")
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	detached, err := h.editor.DeleteAsset(c.Request.Context(), sess, assetID, force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DeleteAssetResponse{AssetID: assetID.String(), Detached: detached})
}
