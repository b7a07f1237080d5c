package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"keyframes-backend/internal/logger"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/services"
)

const keepAliveInterval = 25 * time.Second

// EventsHandler streams a project's realtime channel as server-sent events.
type EventsHandler struct {
	editor *services.EditorService
	hub    *realtime.Hub
	log    *logger.Logger
}

func NewEventsHandler(editor *services.EditorService, hub *realtime.Hub, log *logger.Logger) *EventsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EventsHandler{editor: editor, hub: hub, log: log}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	if _, err := h.editor.GetProject(c.Request.Context(), sess, projectID); err != nil {
		respondError(c, err)
		return
	}

	// Subscribe before reading the version so no later edit is missed.
	msgs, cancel := h.hub.Subscribe(realtime.ProjectChannel(projectID))
	defer cancel()
	snap, err := h.editor.Timeline(c.Request.Context(), sess, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("event stream open", "project_id", projectID, "user_id", sess.UserID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"project_id": projectID.String(), "timeline_version": snap.Version})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, msg.Data)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		}
	})
	h.log.Info("event stream closed", "project_id", projectID, "user_id", sess.UserID)
}
