package export

import (
	"fmt"

	"github.com/clipforge/exportd/internal/clip"
)

// Dimensions are concrete output pixel sizes for a named aspect ratio.
type Dimensions struct {
	Width  int
	Height int
}

var dimensionsByRatio = map[clip.AspectRatio]Dimensions{
	clip.Ratio16x9: {Width: 1920, Height: 1080},
	clip.Ratio9x16: {Width: 1080, Height: 1920},
	clip.Ratio1x1:  {Width: 1080, Height: 1080},
	clip.Ratio4x5:  {Width: 1080, Height: 1350},
}

// ResolveGeometry maps a target aspect ratio to output dimensions.
// Callers must have validated the ratio via clip.ParseAspectRatio; an
// unknown value here is a programmer error and panics.
func ResolveGeometry(ratio clip.AspectRatio) Dimensions {
	d, ok := dimensionsByRatio[ratio]
	if !ok {
		panic(fmt.Sprintf("export: unresolvable aspect ratio %q", ratio))
	}
	return d
}

// NewRenderPlan builds the encode parameters for a target ratio. The
// output is always scaled to fit inside the target box and center-padded
// to exactly the resolved dimensions; source content is never cropped.
func NewRenderPlan(ratio clip.AspectRatio) RenderPlan {
	dims := ResolveGeometry(ratio)
	return RenderPlan{
		OutputWidth:  dims.Width,
		OutputHeight: dims.Height,
		PadColor:     "black",
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		Preset:       "fast",
		CRF:          23,
		AudioBitrate: "128k",
	}
}
