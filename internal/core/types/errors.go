package types

import (
	"errors"
)

var (
	ErrTransport   = errors.New("transport failure")
	ErrAuthExpired = errors.New("credential is no longer valid")
	ErrFatalJob    = errors.New("job failed")
	ErrMediaDecode = errors.New("unable to decode media")
	ErrUsage       = errors.New("invalid request")
)

type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureTransport   FailureKind = "transport_failure"
	FailureAuthExpired FailureKind = "auth_expired"
	FailureFatalJob    FailureKind = "fatal_job_error"
	FailureMediaDecode FailureKind = "media_decode_error"
	FailureUsage       FailureKind = "usage_error"
)

// KindOf classifies err into the failure taxonomy. Errors that carry none of
// the sentinels are treated as transport failures.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrAuthExpired):
		return FailureAuthExpired
	case errors.Is(err, ErrUsage):
		return FailureUsage
	case errors.Is(err, ErrFatalJob):
		return FailureFatalJob
	case errors.Is(err, ErrMediaDecode):
		return FailureMediaDecode
	default:
		return FailureTransport
	}
}

const (
	RetryMessage            = "Something went wrong. Please try again."
	CredentialPromptMessage = "Your API key is no longer valid. Please select an API key and try again."
)

// UserMessage renders err the way a view should present it: a generic retry
// hint, a credential prompt, or the job specific detail.
func UserMessage(err error) string {
	switch KindOf(err) {
	case FailureNone:
		return ""
	case FailureAuthExpired:
		return CredentialPromptMessage
	case FailureFatalJob, FailureUsage:
		return err.Error()
	default:
		return RetryMessage
	}
}
