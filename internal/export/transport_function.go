package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusReader reads the job record the render function keeps up to date.
type StatusReader interface {
	ReadJob(ctx context.Context, jobID string) (JobStatus, error)
}

// FunctionTransport hands descriptors to a Supabase edge function and polls
// the job record it updates.
type FunctionTransport struct {
	baseURL    string
	apiKey     string
	function   string
	status     StatusReader
	httpClient *http.Client
}

type functionRequest struct {
	ProjectID    string          `json:"projectId"`
	ExportID     string          `json:"exportId"`
	Settings     Settings        `json:"settings"`
	CanvasData   json.RawMessage `json:"canvasData"`
	TimelineData json.RawMessage `json:"timelineData"`
	Descriptor   *Descriptor     `json:"descriptor"`
}

type functionResponse struct {
	Success  bool   `json:"success"`
	ExportID string `json:"exportId"`
	FileURL  string `json:"fileUrl"`
	Error    string `json:"error"`
}

func NewFunctionTransport(supabaseURL, apiKey, function string, status StatusReader) *FunctionTransport {
	return &FunctionTransport{
		baseURL:  strings.TrimSuffix(supabaseURL, "/"),
		apiKey:   apiKey,
		function: function,
		status:   status,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit invokes the function. The job id is the descriptor id, which is also
// the id of the job record.
func (t *FunctionTransport) Submit(ctx context.Context, d *Descriptor) (string, error) {
	canvas, err := json.Marshal(d.Canvas)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canvas: %w", err)
	}
	tl, err := json.Marshal(struct {
		Tracks interface{} `json:"tracks"`
		Items  interface{} `json:"items"`
	}{d.Tracks, d.Items})
	if err != nil {
		return "", fmt.Errorf("failed to marshal timeline: %w", err)
	}

	jsonData, err := json.Marshal(functionRequest{
		ProjectID:    d.ProjectID.String(),
		ExportID:     d.ID.String(),
		Settings:     d.Settings,
		CanvasData:   canvas,
		TimelineData: tl,
		Descriptor:   d,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := t.baseURL + "/functions/v1/" + t.function
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("apikey", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Op: "invoke " + t.function, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result functionResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
		}
	}
	if result.Error != "" {
		return "", fmt.Errorf("export function error: %s", result.Error)
	}

	return d.ID.String(), nil
}

func (t *FunctionTransport) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	if t.status == nil {
		return JobStatus{}, fmt.Errorf("no status reader configured")
	}
	return t.status.ReadJob(ctx, jobID)
}
