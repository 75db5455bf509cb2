package core

import (
	"context"
	"log/slog"
	"net/http"
)

// HandlerFunc handles a bound and validated request.
type HandlerFunc[R any] func(ctx context.Context, req R) Response

// Empty is the request type of handlers without input.
type Empty struct{}

// Wrap adapts h to http.HandlerFunc. Binders run in order, then R is
// validated. Server errors are logged with the request context.
func Wrap[R any](h HandlerFunc[R], binders ...Bind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		for _, bind := range binders {
			if err := bind(r, &req); err != nil {
				render(w, r, JSONError(err))
				return
			}
		}
		if len(binders) > 0 {
			if err := Validate(&req); err != nil {
				render(w, r, JSONError(err))
				return
			}
		}
		resp := h(r.Context(), req)
		if resp == nil {
			resp = NoContent()
		}
		render(w, r, resp)
	}
}

func render(w http.ResponseWriter, r *http.Request, resp Response) {
	if jr, ok := resp.(jsonResponse); ok && jr.err != nil && jr.status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", jr.err))
	}
	if err := resp.Render(w, r); err != nil {
		slog.ErrorContext(r.Context(), "render response", slog.Any("error", err))
	}
}

// WriteError renders err directly. For middleware that has no handler return value.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	render(w, r, JSONError(err))
}
