package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"spark-backend/internal/chat"
	"spark-backend/internal/core/types"
	"spark-backend/internal/database"
	"spark-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

// errorResponse picks the status code and the message shown to the caller.
// Errors without an explicit code are classified by failure kind.
func errorResponse(err error) (int, string) {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code, err.Error()
	}

	if errors.Is(err, chat.ErrSessionNotFound) || errors.Is(err, database.ErrNotFound) || errors.Is(err, storage.ErrObjectNotFound) {
		return http.StatusNotFound, err.Error()
	}

	switch types.KindOf(err) {
	case types.FailureUsage:
		return http.StatusBadRequest, types.UserMessage(err)
	case types.FailureAuthExpired:
		return http.StatusUnauthorized, types.UserMessage(err)
	case types.FailureMediaDecode:
		return http.StatusUnprocessableEntity, types.UserMessage(err)
	case types.FailureFatalJob, types.FailureTransport:
		return http.StatusBadGateway, types.UserMessage(err)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func logError(code int, err error) {
	if code >= http.StatusInternalServerError {
		slog.Error("error received in endpoint", "code", code, "kind", types.KindOf(err), "error", err)
	}
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&data, r.Form); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	return data, nil
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			code, msg := errorResponse(err)
			logError(code, err)
			http.Error(w, msg, code)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

type StreamResponse func(yield func(any, error) bool)

type StreamMessage struct {
	Data  interface{}
	Error string
	Code  int
}

// RestStreamHandler writes one JSON StreamMessage per line. Errors returned
// before the stream starts produce a plain error response; errors yielded by
// the stream are reported in-band.
func RestStreamHandler(handler func(r *http.Request) (StreamResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Checked before the handler runs: a stream that is never ranged over
		// would never release what the handler opened for it.
		flusher, ok := w.(http.Flusher)
		if !ok {
			slog.Error("response writer does not support flushing")
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		stream, err := handler(r)
		if err != nil {
			code, msg := errorResponse(err)
			logError(code, err)
			http.Error(w, msg, code)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		encoder := json.NewEncoder(w)
		for data, err := range stream {
			msg := StreamMessage{Data: data, Code: http.StatusOK}
			if err != nil {
				code, text := errorResponse(err)
				logError(code, err)
				msg = StreamMessage{Error: text, Code: code}
			}

			if writeErr := encoder.Encode(msg); writeErr != nil {
				slog.Error("error writing json response", "error", writeErr)
				return
			}

			flusher.Flush()
		}
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "invalid uuid '%v' url parameter provided: %w", key, err)
	}

	return id, nil
}
