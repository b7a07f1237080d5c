package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
)

func (s *server) upload(t *testing.T, workspaceID uuid.UUID, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", "Beach"))
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/workspaces/"+workspaceID.String()+"/assets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *server) uploadAsset(t *testing.T) models.MediaAsset {
	t.Helper()
	w := httpRecorder(s, s.upload(t, s.sess.WorkspaceID, "beach.png", "png-bytes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var asset models.MediaAsset
	decode(t, w, &asset)
	return asset
}

func TestUploadAndListAssets(t *testing.T) {
	s := newServer(t)
	asset := s.uploadAsset(t)

	assert.Equal(t, "Beach", asset.Name)
	assert.Equal(t, models.MediaImage, asset.Kind)
	assert.True(t, asset.Uploaded())

	w := s.do(http.MethodGet, "/workspaces/"+s.sess.WorkspaceID.String()+"/assets", http.NoBody)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.AssetListResponse
	decode(t, w, &list)
	require.Len(t, list.Assets, 1)
	assert.Equal(t, asset.ID, list.Assets[0].ID)
}

func TestUploadAsset_Rejections(t *testing.T) {
	s := newServer(t)

	w := httpRecorder(s, s.upload(t, s.sess.WorkspaceID, "notes.txt", "hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httpRecorder(s, s.upload(t, uuid.New(), "beach.png", "png-bytes"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/workspaces/"+s.sess.WorkspaceID.String()+"/assets", http.NoBody)
	w = httpRecorder(s, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAsset(t *testing.T) {
	s := newServer(t)
	p := s.project(t)
	asset := s.uploadAsset(t)
	tr := s.track(t, p.ID, "image")

	w := s.do(http.MethodPost, "/projects/"+p.ID.String()+"/tracks/"+tr.ID.String()+"/items", gin.H{
		"start_time":     0,
		"duration":       1000,
		"media_asset_id": asset.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodDelete, "/assets/"+asset.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodDelete, "/assets/"+asset.ID.String()+"?force=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.DeleteAssetResponse
	decode(t, w, &resp)
	assert.Equal(t, asset.ID.String(), resp.AssetID)
	assert.Equal(t, 1, resp.Detached)

	w = s.do(http.MethodDelete, "/assets/"+asset.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateItem_AssetFromOtherWorkspace(t *testing.T) {
	s := newServer(t)
	owner := s.sess
	asset := s.uploadAsset(t)

	s.sess = middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()}
	p := s.project(t)
	tr := s.track(t, p.ID, "image")
	w := s.do(http.MethodPost, "/projects/"+p.ID.String()+"/tracks/"+tr.ID.String()+"/items", gin.H{
		"start_time":     0,
		"duration":       1000,
		"media_asset_id": asset.ID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	s.sess = owner
	w = s.do(http.MethodDelete, "/assets/"+asset.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
