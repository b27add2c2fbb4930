package types

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrorKindNone        ErrorKind = "none"
	ErrorKindRetryable   ErrorKind = "retryable"
	ErrorKindAuthExpired ErrorKind = "auth_expired"
	ErrorKindFatal       ErrorKind = "fatal"
)

// Operation is the caller-visible view of a long running remote job. Only
// poll results produce new Operation values; callers never edit one.
type Operation struct {
	Name            string    `json:"name"`
	Done            bool      `json:"done"`
	ArtifactLocator string    `json:"artifact_locator,omitempty"`
	ErrorKind       ErrorKind `json:"error_kind"`
	Err             string    `json:"error,omitempty"`
}

type Media struct {
	Data     []byte
	MIMEType string
}

// Credential is the capability token handed to calls that need the
// user-selected key. The zero value means no credential is selected.
type Credential struct {
	Key string
}

func (c Credential) Valid() bool {
	return c.Key != ""
}

type ImageAspectRatio string

const (
	ImageSquare    ImageAspectRatio = "1:1"
	ImageLandscape ImageAspectRatio = "16:9"
	ImagePortrait  ImageAspectRatio = "9:16"
	ImageFourThree ImageAspectRatio = "4:3"
	ImageThreeFour ImageAspectRatio = "3:4"
)

func (a ImageAspectRatio) Validate() error {
	switch a {
	case ImageSquare, ImageLandscape, ImagePortrait, ImageFourThree, ImageThreeFour:
		return nil
	}
	return fmt.Errorf("%w: unsupported image aspect ratio '%s'", ErrUsage, a)
}

type VideoAspectRatio string

const (
	VideoLandscape VideoAspectRatio = "16:9"
	VideoPortrait  VideoAspectRatio = "9:16"
)

func (a VideoAspectRatio) Validate() error {
	switch a {
	case VideoLandscape, VideoPortrait:
		return nil
	}
	return fmt.Errorf("%w: unsupported video aspect ratio '%s'", ErrUsage, a)
}

type VideoJobSpec struct {
	Prompt      string
	Image       Media
	AspectRatio VideoAspectRatio
}

func (s VideoJobSpec) Validate() error {
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrUsage)
	}
	if len(s.Image.Data) == 0 {
		return fmt.Errorf("%w: a starting image is required", ErrUsage)
	}
	return s.AspectRatio.Validate()
}
