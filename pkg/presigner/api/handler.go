// Package api serves the presigning endpoint used by browser scripts.
//
//	OPTIONS /        CORS preflight
//	GET     /?url=   presign with the default expiration
//	POST    /        presign from {"url": "...", "expires_in": 120}
//	GET     /health  liveness
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/s3-presigner/pkg/presigner/s3url"
	"github.com/tendant/s3-presigner/pkg/presigner/signer"
)

const (
	getUsage  = "GET /?url=https://bucket-name.s3.amazonaws.com/path/to/file"
	postUsage = `POST with JSON: {"url": "https://bucket-name.s3.amazonaws.com/path/to/file", "expires_in": 3600}`
)

// URLSigner computes a presigned GET URL for an object
type URLSigner interface {
	Sign(ctx context.Context, obj s3url.Object, expires time.Duration) (string, error)
}

// Options configures a Handler
type Options struct {
	DefaultExpiresIn int   // seconds, used when the request gives none (default: 3600)
	MaxBodyBytes     int64 // largest accepted POST body (default: 1 MiB)
	LegacyStatus     bool  // answer client errors with 200 for older userscripts
	Quiet            bool  // leave raw request bodies out of the exchange log
	Logger           *slog.Logger
}

// Handler converts S3 object URLs into presigned URLs
type Handler struct {
	signer URLSigner
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a handler that delegates signing to s
func NewHandler(s URLSigner, opts Options) *Handler {
	if opts.DefaultExpiresIn <= 0 {
		opts.DefaultExpiresIn = 3600
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		signer: s,
		opts:   opts,
		logger: logger,
	}
}

// Routes returns the router for the presigner endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware(h.logger))

	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleMethodNotAllowed)

	r.Options("/", h.HandlePreflight)
	r.Get("/", h.HandleGet)
	r.Post("/", h.HandlePost)
	r.Get("/health", h.HandleHealth)

	return r
}

// HandlePreflight answers CORS preflight requests
func (h *Handler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	ex := h.begin()
	defer h.logExchange(r, ex)

	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	ex.status = http.StatusOK
}

// HandleGet presigns the URL given in the url query parameter
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ex := h.begin()
	defer h.logExchange(r, ex)

	query := r.URL.Query()
	ex.request = query

	rawURL := query.Get("url")
	if rawURL == "" {
		ex.err = errors.New("missing url parameter")
		h.respond(w, r, ex, h.clientErrorStatus(), UsageResponse{
			Error: "Missing url parameter",
			Usage: getUsage,
		})
		return
	}

	h.sign(w, r, ex, rawURL, h.opts.DefaultExpiresIn)
}

// HandlePost presigns the URL given in the JSON body
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ex := h.begin()
	defer h.logExchange(r, ex)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	ex.raw = raw
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.fail(w, r, ex, status, fmt.Errorf("reading request body: %w", err))
		return
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		ex.err = fmt.Errorf("decoding request body: %w", err)
		h.respond(w, r, ex, h.clientErrorStatus(), InvalidJSONResponse{
			Error:   "Invalid JSON in request body",
			Details: err.Error(),
			RawData: strings.ToValidUTF8(string(raw), ""),
		})
		return
	}
	ex.request = decoded

	// Valid JSON that is not an object has no url either.
	payload, _ := decoded.(map[string]any)
	value, ok := payload["url"]
	if !ok {
		ex.err = errors.New("missing url in request body")
		h.respond(w, r, ex, h.clientErrorStatus(), MissingURLResponse{
			Error:        "Missing url in JSON body",
			Usage:        postUsage,
			ReceivedData: decoded,
		})
		return
	}

	rawURL, ok := value.(string)
	if !ok {
		h.fail(w, r, ex, http.StatusInternalServerError, fmt.Errorf("url must be a string, got %T", value))
		return
	}

	expiresIn, err := h.expiresIn(payload["expires_in"])
	if err != nil {
		h.fail(w, r, ex, http.StatusInternalServerError, err)
		return
	}

	h.sign(w, r, ex, rawURL, expiresIn)
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "healthy"})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, map[string]string{"error": "Not found", "status": StatusError})
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusMethodNotAllowed)
	render.JSON(w, r, map[string]string{"error": "Method not allowed", "status": StatusError})
}

// sign parses rawURL, delegates to the signer and writes the result
func (h *Handler) sign(w http.ResponseWriter, r *http.Request, ex *exchange, rawURL string, expiresIn int) {
	obj, err := s3url.Parse(rawURL)
	if err != nil {
		h.fail(w, r, ex, http.StatusInternalServerError, fmt.Errorf("invalid S3 URL: %w", err))
		return
	}

	h.logger.Debug("Generating presigned URL",
		"bucket", obj.Bucket,
		"key", obj.Key,
		"region", obj.Region,
		"expires_in", expiresIn,
		"parse_ms", elapsedMillis(ex.start))

	presigned, err := h.signer.Sign(r.Context(), obj, time.Duration(expiresIn)*time.Second)
	if err != nil {
		h.fail(w, r, ex, http.StatusInternalServerError, err)
		return
	}

	h.respond(w, r, ex, http.StatusOK, SignResponse{
		OriginalURL:      rawURL,
		PresignedURL:     presigned,
		ExpiresIn:        expiresIn,
		Status:           StatusSuccess,
		ProcessingTimeMS: elapsedMillis(ex.start),
	})
}

// expiresIn validates the optional expires_in field of a POST body
func (h *Handler) expiresIn(value any) (int, error) {
	if value == nil {
		return h.opts.DefaultExpiresIn, nil
	}
	n, ok := value.(float64)
	if !ok || n != math.Trunc(n) || n < 1 || n > signer.MaxExpiresIn {
		return 0, fmt.Errorf("expires_in must be a whole number of seconds between 1 and %d, got %v", signer.MaxExpiresIn, value)
	}
	return int(n), nil
}

func (h *Handler) clientErrorStatus() int {
	if h.opts.LegacyStatus {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, ex *exchange, status int, body any) {
	ex.status = status
	ex.response = body
	render.Status(r, status)
	render.JSON(w, r, body)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, ex *exchange, status int, err error) {
	ex.err = err
	h.respond(w, r, ex, status, ErrorResponse{
		Error:            errorMessage(err),
		Status:           StatusError,
		ProcessingTimeMS: elapsedMillis(ex.start),
	})
}

// errorMessage renders err for the caller, with operator guidance for credential problems
func errorMessage(err error) string {
	var providerErr *signer.ProviderError
	switch {
	case signer.IsCredentialsError(err):
		return "AWS credentials not found. Please configure your AWS credentials."
	case errors.As(err, &providerErr):
		return fmt.Sprintf("AWS client error: %s: %s", providerErr.Code, providerErr.Message)
	default:
		return err.Error()
	}
}
