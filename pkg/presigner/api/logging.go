package api

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// exchange collects what a handler did so it can be logged once
type exchange struct {
	start    time.Time
	request  any
	raw      []byte
	status   int
	response any
	err      error
}

func (h *Handler) begin() *exchange {
	return &exchange{start: time.Now()}
}

// logExchange writes one record per request/response pair. Failures while
// logging are reported and swallowed.
func (h *Handler) logExchange(r *http.Request, ex *exchange) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Failed to log exchange", "panic", rec)
		}
	}()

	attrs := []any{
		"method", r.Method,
		"path", r.URL.RequestURI(),
		"client", r.RemoteAddr,
		"request_id", RequestIDFromContext(r.Context()),
		"status", ex.status,
		"duration_ms", elapsedMillis(ex.start),
		headerGroup(r.Header),
	}
	if ex.request != nil {
		attrs = append(attrs, slog.Any("request", ex.request))
	}
	if ex.raw != nil && !h.opts.Quiet {
		attrs = append(attrs, rawGroup(ex.raw))
	}
	if ex.response != nil {
		attrs = append(attrs, slog.Any("response", ex.response))
	}

	level := slog.LevelInfo
	switch {
	case ex.status >= http.StatusInternalServerError:
		level = slog.LevelError
	case ex.err != nil || ex.status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}
	if ex.err != nil {
		attrs = append(attrs, "error", ex.err)
	}

	h.logger.Log(r.Context(), level, "Request handled", attrs...)
}

func headerGroup(header http.Header) slog.Attr {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.String(name, strings.Join(header[name], ", ")))
	}
	return slog.Group("headers", attrs...)
}

// rawGroup renders a request body in hex, quoted ASCII and UTF-8 form
func rawGroup(raw []byte) slog.Attr {
	text := "<decode error>"
	if utf8.Valid(raw) {
		text = string(raw)
	}
	return slog.Group("raw",
		slog.Int("bytes", len(raw)),
		slog.String("hex", hex.EncodeToString(raw)),
		slog.String("ascii", strconv.QuoteToASCII(string(raw))),
		slog.String("utf8", text),
	)
}
