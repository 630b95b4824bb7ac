// Package clip holds the clip metadata model consumed by the export
// pipeline: a user-selected time range of a source video plus target
// formatting and an optional caption track.
package clip

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AspectRatio is a named target output format.
type AspectRatio string

const (
	Ratio16x9 AspectRatio = "16:9"
	Ratio9x16 AspectRatio = "9:16"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x5  AspectRatio = "4:5"
)

// ParseAspectRatio validates caller-supplied ratio names.
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(s) {
	case Ratio16x9, Ratio9x16, Ratio1x1, Ratio4x5:
		return AspectRatio(s), nil
	default:
		return "", fmt.Errorf("unsupported aspect ratio %q (want 16:9, 9:16, 1:1 or 4:5)", s)
	}
}

// Cue is one caption entry. Offsets are seconds on the source video's
// timeline; the subtitle renderer rebases them onto the clip window.
type Cue struct {
	Text        string  `json:"text"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	Style       string  `json:"style,omitempty"`
}

// Clip is a registered export candidate. SourceDuration is recorded at
// registration time from the owning video's metadata so that range
// validation needs no probe of the source blob.
type Clip struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Title          string      `json:"title"`
	SourceLocator  string      `json:"source_locator"`
	SourceDuration float64     `json:"source_duration"`
	StartTime      float64     `json:"start_time"`
	EndTime        float64     `json:"end_time"`
	AspectRatio    AspectRatio `json:"aspect_ratio"`
	CaptionTrack   []Cue       `json:"caption_track,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Duration returns the clip's length in seconds.
func (c *Clip) Duration() float64 {
	return c.EndTime - c.StartTime
}

func NewID() string {
	return uuid.New().String()
}
