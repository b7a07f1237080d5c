// Package realtime fans timeline and export events out to connected editors,
// across server instances when a Redis bus is configured.
package realtime

import (
	"fmt"

	"github.com/google/uuid"
	"keyframes-backend/internal/timeline"
)

// Message is one event on a channel. Channels are named "project:<id>".
type Message struct {
	Channel string                 `json:"channel"`
	Event   string                 `json:"event"`
	Data    map[string]interface{} `json:"data"`
}

func ProjectChannel(projectID uuid.UUID) string {
	return fmt.Sprintf("project:%s", projectID.String())
}

const (
	EventExportProgress  = "export.progress"
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
	EventAutosaveFailed  = "autosave.failed"
	EventAutosaved       = "autosave.saved"
)

// TimelineMessage wraps a committed timeline mutation.
func TimelineMessage(ev timeline.Event) Message {
	data := map[string]interface{}{
		"project_id": ev.ProjectID.String(),
		"version":    ev.Version,
	}
	if ev.TrackID != uuid.Nil {
		data["track_id"] = ev.TrackID.String()
	}
	if ev.ItemID != uuid.Nil {
		data["item_id"] = ev.ItemID.String()
	}
	if ev.Track != nil {
		data["track"] = ev.Track
	}
	if ev.Item != nil {
		data["item"] = ev.Item
	}
	if len(ev.Removed) > 0 {
		removed := make([]string, len(ev.Removed))
		for i, id := range ev.Removed {
			removed[i] = id.String()
		}
		data["removed_items"] = removed
	}
	return Message{Channel: ProjectChannel(ev.ProjectID), Event: string(ev.Type), Data: data}
}

func ExportProgressMessage(projectID, exportID uuid.UUID, progress int) Message {
	return Message{
		Channel: ProjectChannel(projectID),
		Event:   EventExportProgress,
		Data: map[string]interface{}{
			"project_id": projectID.String(),
			"export_id":  exportID.String(),
			"status":     "processing",
			"progress":   progress,
		},
	}
}

func ExportCompletedMessage(projectID, exportID uuid.UUID, fileURL string) Message {
	return Message{
		Channel: ProjectChannel(projectID),
		Event:   EventExportCompleted,
		Data: map[string]interface{}{
			"project_id": projectID.String(),
			"export_id":  exportID.String(),
			"status":     "completed",
			"progress":   100,
			"file_url":   fileURL,
		},
	}
}

func ExportFailedMessage(projectID, exportID uuid.UUID, errorMsg string) Message {
	return Message{
		Channel: ProjectChannel(projectID),
		Event:   EventExportFailed,
		Data: map[string]interface{}{
			"project_id": projectID.String(),
			"export_id":  exportID.String(),
			"status":     "failed",
			"error":      errorMsg,
		},
	}
}

func AutosaveMessage(projectID uuid.UUID, err error) Message {
	if err != nil {
		return Message{
			Channel: ProjectChannel(projectID),
			Event:   EventAutosaveFailed,
			Data: map[string]interface{}{
				"project_id": projectID.String(),
				"error":      err.Error(),
			},
		}
	}
	return Message{
		Channel: ProjectChannel(projectID),
		Event:   EventAutosaved,
		Data:    map[string]interface{}{"project_id": projectID.String()},
	}
}
