package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clipforge/exportd/internal/clip"
)

// SubtitleCue is one renderable caption, timed relative to the clip.
type SubtitleCue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderSubtitles windows a caption track onto [clipStart, clipEnd].
// Cues entirely outside the window are dropped, partial overlaps are
// clamped to [0, clipEnd-clipStart], and timestamps are rebased to the
// clip's own timeline. A nil or empty track yields nil: subtitle burning
// is skipped entirely, never burned as empty.
func RenderSubtitles(track []clip.Cue, clipStart, clipEnd float64) []SubtitleCue {
	if len(track) == 0 {
		return nil
	}

	clipDur := clipEnd - clipStart
	var cues []SubtitleCue
	for _, c := range track {
		if c.EndOffset <= clipStart || c.StartOffset >= clipEnd {
			continue
		}

		start := c.StartOffset - clipStart
		if start < 0 {
			start = 0
		}
		end := c.EndOffset - clipStart
		if end > clipDur {
			end = clipDur
		}
		if end <= start {
			continue
		}

		text := sanitizeCueText(c.Text)
		if text == "" {
			continue
		}

		cues = append(cues, SubtitleCue{
			Start: secondsToDuration(start),
			End:   secondsToDuration(end),
			Text:  text,
		})
	}
	return cues
}

// WriteSRT serialises cues as SubRip with millisecond timestamps.
func WriteSRT(w io.Writer, cues []SubtitleCue) error {
	for i, c := range cues {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(c.Start), srtTimestamp(c.End), c.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1_000
	ms -= s * 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}

// sanitizeCueText neutralises control characters that would break the
// subtitle file syntax. Interior newlines become single line breaks; a
// blank line inside a cue would terminate it early in SubRip.
func sanitizeCueText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		var b strings.Builder
		for _, r := range line {
			if r < 0x20 || r == 0x7f {
				continue
			}
			b.WriteRune(r)
		}
		trimmed := strings.TrimSpace(b.String())
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
