package export

import (
	"fmt"

	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatGIF  Format = "gif"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Settings are the render parameters handed to the renderer. Duration is in
// milliseconds; zero means the whole project.
type Settings struct {
	Format     Format     `json:"format"`
	Quality    Quality    `json:"quality"`
	Resolution Resolution `json:"resolution"`
	FPS        int        `json:"fps"`
	Duration   int64      `json:"duration"`
}

const (
	maxDimension = 7680
	maxFPS       = 120
)

func GIFSettings(durationMs int64) Settings {
	return Settings{Format: FormatGIF, Quality: QualityMedium, Resolution: Resolution{Width: 800, Height: 600}, FPS: 12, Duration: durationMs}
}

func HDSettings(durationMs int64) Settings {
	return Settings{Format: FormatMP4, Quality: QualityHigh, Resolution: Resolution{Width: 1920, Height: 1080}, FPS: 30, Duration: durationMs}
}

func UHDSettings(durationMs int64) Settings {
	return Settings{Format: FormatMP4, Quality: QualityUltra, Resolution: Resolution{Width: 3840, Height: 2160}, FPS: 30, Duration: durationMs}
}

// Preset returns a named preset: gif, hd or 4k.
func Preset(name string, durationMs int64) (Settings, bool) {
	switch name {
	case "gif":
		return GIFSettings(durationMs), true
	case "hd", "1080p":
		return HDSettings(durationMs), true
	case "4k", "uhd":
		return UHDSettings(durationMs), true
	}
	return Settings{}, false
}

// WithDefaults fills unset fields from the project canvas.
func (s Settings) WithDefaults(p models.Project) Settings {
	if s.Format == "" {
		s.Format = FormatMP4
	}
	if s.Quality == "" {
		s.Quality = QualityHigh
	}
	if s.Resolution.Width == 0 && s.Resolution.Height == 0 {
		s.Resolution = Resolution{Width: p.Canvas.Width, Height: p.Canvas.Height}
	}
	if s.FPS == 0 {
		s.FPS = int(p.Canvas.FrameRate + 0.5)
	}
	if s.Duration == 0 {
		s.Duration = p.Canvas.Duration
	}
	return s
}

func (s Settings) Validate() error {
	switch s.Format {
	case FormatMP4, FormatWebM, FormatGIF:
	default:
		return apperr.Validation("format", fmt.Sprintf("unsupported format %q", s.Format))
	}
	switch s.Quality {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
	default:
		return apperr.Validation("quality", fmt.Sprintf("unsupported quality %q", s.Quality))
	}
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 ||
		s.Resolution.Width > maxDimension || s.Resolution.Height > maxDimension {
		return apperr.Validation("resolution", fmt.Sprintf("must be within 1..%d on both axes", maxDimension))
	}
	if s.FPS <= 0 || s.FPS > maxFPS {
		return apperr.Validation("fps", fmt.Sprintf("must be between 1 and %d", maxFPS))
	}
	if s.Duration <= 0 {
		return apperr.Validation("duration", "must be positive")
	}
	return nil
}
