package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
)

func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), models.ErrorResponse{
		Error:   apperr.Code(err),
		Message: err.Error(),
	})
}

func badRequest(c *gin.Context, msg string, err error) {
	resp := models.ErrorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func session(c *gin.Context) (middleware.Session, bool) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return middleware.Session{}, false
	}
	return sess, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}
