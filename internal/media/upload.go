package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
)

// Uploader stores bytes and returns the public URL of the stored object.
// supabase.StorageClient implements it.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

// File is one upload handed in by the transport layer.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	WorkspaceID uuid.UUID
	ProjectID   *uuid.UUID
	UploadedBy  uuid.UUID
	Name        string
}

// ObjectPath is the storage key of an upload: workspace/upload-id/filename.
func ObjectPath(workspaceID, uploadID uuid.UUID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "upload"
	}
	return path.Join(workspaceID.String(), uploadID.String(), base)
}

// UploadMedia registers the asset, stores its bytes and completes the upload.
// If storing or completing fails, the half-registered asset is deleted.
func UploadMedia(ctx context.Context, reg Registry, up Uploader, f File) (models.MediaAsset, error) {
	kind := KindFromMime(f.ContentType, f.Filename)
	if kind == "" {
		return models.MediaAsset{}, apperr.Validation("file", fmt.Sprintf("unsupported media type %q", f.ContentType))
	}
	name := f.Name
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(path.Base(f.Filename), path.Ext(f.Filename))
	}

	objectPath := ObjectPath(f.WorkspaceID, uuid.New(), f.Filename)
	asset, err := reg.RegisterAsset(ctx, Metadata{
		Name:         name,
		OriginalName: f.Filename,
		Kind:         kind,
		MimeType:     f.ContentType,
		StoragePath:  objectPath,
		WorkspaceID:  f.WorkspaceID,
		ProjectID:    f.ProjectID,
		UploadedBy:   f.UploadedBy,
	})
	if err != nil {
		return models.MediaAsset{}, err
	}

	url, err := up.Upload(ctx, objectPath, f.ContentType, f.Body)
	if err != nil {
		_ = reg.DeleteAsset(context.WithoutCancel(ctx), asset.ID)
		return models.MediaAsset{}, apperr.External("storage", err)
	}

	done, err := reg.CompleteUpload(ctx, asset.ID, url, f.Size)
	if err != nil {
		_ = up.Remove(context.WithoutCancel(ctx), objectPath)
		_ = reg.DeleteAsset(context.WithoutCancel(ctx), asset.ID)
		return models.MediaAsset{}, err
	}
	return done, nil
}
