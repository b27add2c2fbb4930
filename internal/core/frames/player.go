package frames

import (
	"image/draw"
)

type Metadata struct {
	Width    int
	Height   int
	Duration float64
}

// Player is a decode/seek/draw capability that reports completion through
// callbacks rather than return values. Load and SeekTo only start work; the
// matching OnLoadedMetadata or OnSeeked callback (or OnError) fires later,
// possibly on another goroutine. Only the most recently decoded frame can be
// drawn.
type Player interface {
	OnLoadedMetadata(func(Metadata))
	OnSeeked(func())
	OnError(func(error))

	Load()
	SeekTo(seconds float64)

	DrawFrame(dst draw.Image) error

	// Release frees any resources held for the media, such as a temporary
	// file. It is called exactly once per extraction.
	Release() error
}
