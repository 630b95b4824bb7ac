package ffmpeg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/exportd/internal/export"
)

func testPlan() export.RenderPlan {
	return export.RenderPlan{
		OutputWidth:  1080,
		OutputHeight: 1920,
		PadColor:     "black",
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		Preset:       "fast",
		CRF:          23,
		AudioBitrate: "128k",
	}
}

func TestBuildTranscodeArgs(t *testing.T) {
	req := export.TranscodeRequest{
		InputPath:  "/work/source.mp4",
		OutputPath: "/work/clip.mp4",
		StartTime:  100,
		Duration:   30,
		Plan:       testPlan(),
	}

	args := buildTranscodeArgs(req)
	joined := strings.Join(args, " ")

	// Fast seek goes before the input, duration after it.
	ssIdx := strings.Index(joined, "-ss 100.000")
	inIdx := strings.Index(joined, "-i /work/source.mp4")
	tIdx := strings.Index(joined, "-t 30.000")
	if ssIdx == -1 || inIdx == -1 || tIdx == -1 {
		t.Fatalf("missing cut arguments in %q", joined)
	}
	if !(ssIdx < inIdx && inIdx < tIdx) {
		t.Fatalf("cut argument order wrong in %q", joined)
	}

	for _, want := range []string{
		"-c:v libx264",
		"-preset fast",
		"-crf 23",
		"-c:a aac",
		"-b:a 128k",
		"-movflags +faststart",
		"-progress pipe:1",
		"-nostats",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %q", want, joined)
		}
	}

	if args[len(args)-1] != "/work/clip.mp4" {
		t.Fatalf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestBuildTranscodeArgs_Deterministic(t *testing.T) {
	req := export.TranscodeRequest{
		InputPath:  "/work/source.mp4",
		OutputPath: "/work/clip.mp4",
		StartTime:  1.5,
		Duration:   10,
		Plan:       testPlan(),
	}

	a := strings.Join(buildTranscodeArgs(req), "\x00")
	b := strings.Join(buildTranscodeArgs(req), "\x00")
	if a != b {
		t.Fatal("identical requests produced different argument lists")
	}
}

func TestBuildVideoFilter_ScalePadNeverCrop(t *testing.T) {
	filter := buildVideoFilter(testPlan())

	want := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:color=black"
	if filter != want {
		t.Fatalf("filter = %q, want %q", filter, want)
	}
	if strings.Contains(filter, "crop") {
		t.Fatal("filter must never crop")
	}
}

func TestBuildVideoFilter_WithSubtitles(t *testing.T) {
	plan := testPlan()
	plan.SubtitlePath = "/work/captions.srt"

	filter := buildVideoFilter(plan)
	if !strings.HasSuffix(filter, ",subtitles=/work/captions.srt") {
		t.Fatalf("filter = %q, want trailing subtitles clause", filter)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/plain/path.srt", "/plain/path.srt"},
		{"/tmp/it's here.srt", `/tmp/it\'s here.srt`},
		{"C:/work/a.srt", `C\:/work/a.srt`},
		{"/a,b;c.srt", `/a\,b\;c.srt`},
		{"/a[1].srt", `/a\[1\].srt`},
		{`/back\slash.srt`, `/back\\slash.srt`},
	}

	for _, tt := range tests {
		if got := escapeFilterPath(tt.in); got != tt.want {
			t.Fatalf("escapeFilterPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscodeBudget(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{5, 60 * time.Second},   // floored at one minute
		{20, 60 * time.Second},  // 3x still under the floor
		{30, 90 * time.Second},  // 3x above the floor
		{180, 540 * time.Second},
	}

	for _, tt := range tests {
		if got := TranscodeBudget(tt.seconds); got != tt.want {
			t.Fatalf("TranscodeBudget(%.0f) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestTailWriter_KeepsOnlyTail(t *testing.T) {
	w := &tailWriter{limit: 8}

	if _, err := w.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := w.String(); got != "89abcdef" {
		t.Fatalf("tail = %q, want %q", got, "89abcdef")
	}

	if _, err := w.Write([]byte("XY")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := w.String(); got != "abcdefXY" {
		t.Fatalf("tail after second write = %q, want %q", got, "abcdefXY")
	}
}

func TestTailWriter_UnderLimit(t *testing.T) {
	w := &tailWriter{limit: 1024}
	w.Write([]byte("short"))
	if w.String() != "short" {
		t.Fatalf("tail = %q, want %q", w.String(), "short")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("0123456789", 4); got != "...6789" {
		t.Fatalf("truncate long = %q, want %q", got, "...6789")
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := formatSeconds(100); got != "100.000" {
		t.Fatalf("formatSeconds(100) = %q", got)
	}
	if got := formatSeconds(1.2345); got != "1.234" {
		t.Fatalf("formatSeconds(1.2345) = %q", got)
	}
}

// A stub tool standing in for ffmpeg: emits a full progress stream on
// stdout, creates the output file (the last argument), and exits clean.
func writeStubTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg-stub")
	script := `#!/bin/sh
for a; do last="$a"; done
printf 'out_time_ms=10000000\nout_time_ms=20000000\nprogress=end\n'
: > "$last"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscode_DrainsFullProgressStream(t *testing.T) {
	tools := &Tools{
		ffmpegPath: writeStubTool(t),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	var got []int
	req := export.TranscodeRequest{
		InputPath:  "ignored.mp4",
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
		StartTime:  0,
		Duration:   20,
		Plan:       testPlan(),
		OnProgress: func(pct int) { got = append(got, pct) },
	}

	if err := tools.Transcode(context.Background(), req); err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}

	// Every line the tool wrote must be observed, including the final
	// progress=end marker emitted just before exit.
	want := []int{50, 99, 100}
	if len(got) != len(want) {
		t.Fatalf("callbacks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callbacks = %v, want %v", got, want)
		}
	}
}
