package supabase_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/supabase"
)

func TestStorageClient_PublicURL(t *testing.T) {
	s, err := supabase.NewStorageClient("https://proj.supabase.co/", "service-key", "media")
	require.NoError(t, err)

	workspaceID := uuid.New()
	uploadID := uuid.New()
	path := media.ObjectPath(workspaceID, uploadID, "clips/beach.mp4")

	assert.Equal(t,
		"https://proj.supabase.co/storage/v1/object/public/media/"+workspaceID.String()+"/"+uploadID.String()+"/beach.mp4",
		s.PublicURL(path))
}

func TestNewStorageClient_RequiresURLAndBucket(t *testing.T) {
	_, err := supabase.NewStorageClient("", "key", "media")
	assert.Error(t, err)

	_, err = supabase.NewStorageClient("https://proj.supabase.co", "key", "")
	assert.Error(t, err)
}
