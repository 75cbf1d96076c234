package serverutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	seyerrs "github.com/jdholdren/diggfeed/internal/errors"
	"github.com/jdholdren/diggfeed/internal/logger"
)

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

func WriteText(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("error writing text response: %s", err)
	}

	return nil
}

// WriteError writes err as a plain text response. Anything that isn't already a
// structured error becomes a 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	sErr := &seyerrs.Error{}
	if !errors.As(err, &sErr) {
		sErr = seyerrs.E(err)
	}
	if sErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "status_code", sErr.Status, "error", err)
	}

	if err := WriteText(w, sErr.Status, sErr.Body()); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// NotFound answers every unmatched route.
var NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, seyerrs.E(seyerrs.KindNotFound, http.StatusNotFound))
})

// RequestIDHeader carries the id assigned to each request back to the client.
const RequestIDHeader = "X-Request-Id"

func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := logger.Ctx(r.Context(), slog.String("request_id", id))
		r = r.WithContext(ctx)
		w.Header().Set(RequestIDHeader, id)

		slog.DebugContext(ctx, "request received", "method", r.Method, "path", r.URL.Path)
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		slog.InfoContext(ctx, "request completed",
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
//
// A panic in the handler is answered like any other internal error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			WriteError(w, r, seyerrs.E(fmt.Errorf("%v", rec)))
		}
	}()

	if err := f(w, r); err != nil {
		WriteError(w, r, err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
