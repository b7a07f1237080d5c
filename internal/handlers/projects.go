package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/services"
)

type ProjectsHandler struct {
	editor *services.EditorService
}

func NewProjectsHandler(editor *services.EditorService) *ProjectsHandler {
	return &ProjectsHandler{editor: editor}
}

func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projects, err := h.editor.ListProjects(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ProjectListResponse{Projects: projects})
}

func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	project, err := h.editor.CreateProject(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectsHandler) GetProject(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	project, err := h.editor.GetProject(c.Request.Context(), sess, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectsHandler) UpdateProject(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	project, err := h.editor.UpdateProject(c.Request.Context(), sess, projectID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	if err := h.editor.DeleteProject(c.Request.Context(), sess, projectID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
