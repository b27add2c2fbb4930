package stream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"spark-backend/internal/core/types"
)

// Accumulate folds a response stream into a model message appended to
// transcript, calling publish with the message after every fragment and once
// more after the stream ends normally.
//
// The model message is appended when the first fragment arrives. If the
// stream fails, a message that is still empty is removed from the transcript
// while a message with partial text is kept; in both cases the failure is
// returned, together with whatever message survived.
//
// Callers must not run two Accumulate calls on the same transcript at once.
func Accumulate(
	ctx context.Context,
	transcript *Transcript,
	fragments iter.Seq2[types.Fragment, error],
	publish func(types.Message),
) (types.Message, error) {
	var entry *Entry
	var streamErr error

	for fragment, err := range fragments {
		if err != nil {
			streamErr = err
			break
		}

		if entry == nil {
			entry = transcript.begin()
		}

		entry.apply(fragment)
		if publish != nil {
			publish(entry.Message())
		}

		if err := ctx.Err(); err != nil {
			streamErr = err
			break
		}
	}

	if streamErr != nil {
		if entry == nil {
			return types.Message{}, fmt.Errorf("%w: response stream failed: %w", types.ErrTransport, streamErr)
		}
		if entry.discardIfEmpty() {
			slog.Info("removed empty model message after stream failure", "error", streamErr)
			return types.Message{}, fmt.Errorf("%w: response stream failed: %w", types.ErrTransport, streamErr)
		}
		partial := entry.Message()
		slog.Warn("response stream failed, keeping partial message", "chars", len(partial.Text), "error", streamErr)
		return partial, fmt.Errorf("%w: response stream failed: %w", types.ErrTransport, streamErr)
	}

	if entry == nil {
		slog.Warn("response stream ended without any fragments")
		return types.Message{Role: types.RoleModel, Citations: []types.Citation{}, Complete: true}, nil
	}

	entry.complete()
	final := entry.Message()
	if publish != nil {
		publish(final)
	}
	return final, nil
}
