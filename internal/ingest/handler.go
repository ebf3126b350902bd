// Package ingest handles the CSP report endpoint.
package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"cspreport/internal/cluster"
	"cspreport/internal/credential"
	"cspreport/internal/metrics"
	"cspreport/internal/report"
)

// Resolver returns the cluster detail for a document, or nil when unknown.
type Resolver interface {
	Resolve(ctx context.Context, documentURI string) *cluster.Detail
}

// Forwarder submits a record to the analytics backend.
type Forwarder interface {
	Forward(ctx context.Context, rec report.Record, detail *cluster.Detail, credential string) error
}

// Handler runs each received report through normalization, cluster
// resolution, credential selection and forwarding.
type Handler struct {
	resolver    Resolver
	selector    credential.Selector
	forwarder   Forwarder
	metrics     *metrics.Metrics
	maxBodySize int64
}

// NewHandler creates a Handler.
func NewHandler(
	resolver Resolver,
	selector credential.Selector,
	forwarder Forwarder,
	m *metrics.Metrics,
	maxBodySize int64,
) *Handler {
	return &Handler{
		resolver:    resolver,
		selector:    selector,
		forwarder:   forwarder,
		metrics:     m,
		maxBodySize: maxBodySize,
	}
}

type errorResponse struct {
	Error  string         `json:"error"`
	Report *report.Record `json:"report,omitempty"`
}

// HandleReport handles POST /api/report.
//
// Bodies that are not a CSP report are still forwarded as error records.
// The normalized record is echoed back on success.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "report body too large"})
			return
		}
		logger.Warn().Err(err).Msg("Failed to read report body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read report body"})
		return
	}
	logger.Debug().Str("body", string(body)).Msg("CSP report received")

	rec := report.NormalizeJSON(r.Header, body)
	h.metrics.ObserveReport(rec.Kind.String())
	if rec.Kind == report.ParseError {
		logger.Info().Str("reason", rec.Reason).Msg("CSP report not parsed")
	}

	documentURI := rec.DocumentURI()
	detail := h.resolver.Resolve(ctx, documentURI)
	key := h.selector.Select(detail, documentURI)

	if err := h.forwarder.Forward(ctx, rec, detail, key); err != nil {
		logger.Error().Err(err).
			Str("document_uri", documentURI).
			Bool("cluster_resolved", detail != nil).
			Msg("CSP report forwarding failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Report: &rec})
		return
	}

	logger.Debug().
		Str("document_uri", documentURI).
		Str("parse", rec.Kind.String()).
		Bool("cluster_resolved", detail != nil).
		Msg("CSP report forwarded")
	writeJSON(w, http.StatusOK, rec)
}

// HandlePreflight handles OPTIONS /api/report.
func HandlePreflight(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
