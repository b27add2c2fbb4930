package types

// Frame is one still sample taken at Timestamp seconds into the video.
type Frame struct {
	Timestamp float64
	MIMEType  string
	Data      []byte
}

func (f Frame) Media() Media {
	return Media{Data: f.Data, MIMEType: f.MIMEType}
}

type FrameBatch struct {
	Frames   []Frame
	Duration float64
}

func (b FrameBatch) Len() int {
	return len(b.Frames)
}

func (b FrameBatch) Media() []Media {
	media := make([]Media, 0, len(b.Frames))
	for _, frame := range b.Frames {
		media = append(media, frame.Media())
	}
	return media
}
