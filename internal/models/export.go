package models

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// ExportRecord is a row of project_exports, the job record the external
// renderer updates while it works.
type ExportRecord struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	CreatedBy    uuid.UUID
	JobID        sql.NullString
	Settings     json.RawMessage
	Status       string
	Progress     int
	FileURL      sql.NullString
	FileSize     sql.NullInt64
	ErrorMessage sql.NullString
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}
