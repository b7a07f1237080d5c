package export

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"keyframes-backend/internal/models"
)

// EDL renders the descriptor's media items as a CMX3600 edit decision list.
// Record times are the items' timeline positions; source in is the item's
// trimStart property. Items whose asset did not resolve are skipped.
func (d *Descriptor) EDL() string {
	frameRate := d.Canvas.FrameRate
	if d.Settings.FPS > 0 && d.Settings.FPS != int(math.Round(frameRate)) {
		frameRate = float64(d.Settings.FPS)
	}
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}
	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", edlTitle(d.ProjectName))}
	if dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	snap := d.Snapshot()
	positions := make(map[uuid.UUID]int, len(snap.Tracks))
	for _, tr := range snap.Tracks {
		positions[tr.ID] = tr.Position
	}
	items := snap.Items
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartTime != items[j].StartTime {
			return items[i].StartTime < items[j].StartTime
		}
		return positions[items[i].TrackID] < positions[items[j].TrackID]
	})

	event := 0
	for _, it := range items {
		if it.MediaAssetID == nil {
			continue
		}
		asset, ok := d.Assets[*it.MediaAssetID]
		if !ok || !asset.Uploaded() {
			continue
		}
		channel := "V"
		switch asset.Kind {
		case models.MediaAudio:
			channel = "A"
		case models.MediaVideo, models.MediaImage:
		default:
			continue
		}

		srcIn := int64(trimStart(it.Properties))
		event++
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s",
				event, reelName(asset.Name), channel,
				msToTimecode(srcIn, fps), msToTimecode(srcIn+it.Duration, fps),
				msToTimecode(it.StartTime, fps), msToTimecode(it.EndTime, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", asset.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", *asset.URL),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func trimStart(p map[string]interface{}) float64 {
	if v, ok := p["trimStart"].(float64); ok && v > 0 {
		return v
	}
	return 0
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % int64(fps)
	totalSeconds := totalFrames / int64(fps)
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

// reelName reduces a clip name to the 8 character reel field.
func reelName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	if b.Len() == 0 {
		return "AX"
	}
	return b.String()
}

func edlTitle(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	title := strings.TrimSpace(b.String())
	if title == "" {
		return "Untitled"
	}
	return title
}
