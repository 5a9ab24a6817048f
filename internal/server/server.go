package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/posterize/internal/config"
	"github.com/kiesman99/posterize/internal/poster"
	"github.com/kiesman99/posterize/internal/tilecache"
	"github.com/kiesman99/posterize/pkg/tile"
)

// maxRequestBody bounds the JSON body of a render request.
const maxRequestBody = 64 << 10

// Server renders poster maps over HTTP.
type Server struct {
	startTime time.Time
	version   string
	base      config.Render
	logger    *slog.Logger
	metrics   *Metrics
	fetcher   *tile.Fetcher

	mu     sync.Mutex
	stores map[string]*tilecache.LRU

	// tileHosts restricts request tile sources; empty allows any host.
	tileHosts []string
}

// NewServer creates a new server instance. base supplies the defaults of
// every request as well as the cache, fetch and provider settings.
func NewServer(version string, base config.Render, logger *slog.Logger, metrics *Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		base:      base,
		logger:    logger,
		metrics:   metrics,
		fetcher:   newFetcher(base.Fetch, nil),
		stores:    make(map[string]*tilecache.LRU),
	}
}

func newFetcher(cfg config.Fetch, headers map[string]string) *tile.Fetcher {
	return tile.NewFetcher(
		tile.WithUserAgent(cfg.UserAgent),
		tile.WithMaxAttempts(cfg.Attempts),
		tile.WithTimeout(cfg.Timeout),
		tile.WithBackoff(cfg.Backoff),
		tile.WithHeaders(headers),
	)
}

// AllowTileHosts restricts the hosts a request's tile_source may point at.
// A host also admits its subdomains. With no hosts every URL is accepted.
func (s *Server) AllowTileHosts(hosts ...string) {
	s.tileHosts = nil
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.tileHosts = append(s.tileHosts, h)
		}
	}
}

func (s *Server) tileHostAllowed(host string) bool {
	if len(s.tileHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range s.tileHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Close releases the in-memory tile caches.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, lru := range s.stores {
		lru.Close()
		delete(s.stores, name)
	}
}

// store returns the shared cache of a provider, creating it on first use.
func (s *Server) store(p tile.Provider) tilecache.Store {
	if !s.base.Cache.Enabled {
		return tilecache.Nop{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lru, ok := s.stores[p.Name]
	if !ok {
		lru = tilecache.NewLRU(tilecache.NewDisk(s.base.Cache.Dir, p.Name), s.base.Cache.MemoryItems)
		s.stores[p.Name] = lru
	}
	return lru
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := HealthResponse{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("encoding health response", "error", err)
	}
}

// CreatePoster implements the render endpoint. The response is the map as
// PNG; X-Tile-Holes tells how many tiles are missing from it.
func (s *Server) CreatePoster(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = generateRequestID()
	}

	style, canvas := s.base.Style, s.base.Canvas
	req := RenderRequest{
		Location: config.Location{MarkerPolicy: config.MarkerIfPresent},
		Style:    &style,
		Canvas:   &canvas,
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), &requestID, nil)
			return
		}
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	cfg, opts, err := s.renderConfig(&req)
	if err != nil {
		s.writeValidationErrorResponse(w, err.Error(), &requestID)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.writeValidationErrorResponse(w, err.Error(), &requestID)
		return
	}

	logger := s.logger.With("request_id", requestID)
	opts = append(opts, poster.WithLogger(logger))

	p, err := poster.New(cfg, opts...)
	if err != nil {
		s.metrics.renderFailed()
		if errors.Is(err, tile.ErrCanvasTooLarge) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "CANVAS_TOO_LARGE",
				err.Error(), &requestID, map[string]interface{}{"max_pixels": cfg.MaxPixels})
			return
		}
		s.writeValidationErrorResponse(w, err.Error(), &requestID)
		return
	}

	start := time.Now()
	result, err := p.Render(r.Context())
	s.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.renderFailed()
		s.handleRenderError(w, err, &requestID)
		return
	}
	s.metrics.observeReport(result.Report)

	if req.Strict {
		if err := result.Report.Err(); err != nil {
			s.handleRenderError(w, err, &requestID)
			return
		}
	}

	data, err := tile.EncodePNG(result.Image)
	if err != nil {
		s.handleRenderError(w, err, &requestID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Tile-Holes", strconv.Itoa(len(result.Report.Holes())))
	w.Header().Set("X-Tile-Total", strconv.Itoa(result.Grid.Len()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("writing response", "error", err)
	}
}

// renderConfig merges a request into the server defaults.
func (s *Server) renderConfig(req *RenderRequest) (config.Render, []poster.Option, error) {
	cfg := s.base
	cfg.Location = req.Location
	if req.Style != nil {
		cfg.Style = *req.Style
	}
	if req.Canvas != nil {
		cfg.Canvas = *req.Canvas
	}
	// Icons are files on the server; requests only get the built-in pin.
	cfg.Style.Marker.Icon = ""

	if req.TileSource == nil {
		provider, err := cfg.Provider()
		if err != nil {
			return cfg, nil, err
		}
		return cfg, []poster.Option{poster.WithFetcher(s.fetcher), poster.WithStore(s.store(provider))}, nil
	}

	src := req.TileSource
	provider := tile.Provider{Name: "request", URL: src.URL, MinZoom: 0, MaxZoom: 20}
	if src.MinZoom != nil {
		provider.MinZoom = *src.MinZoom
	}
	if src.MaxZoom != nil {
		provider.MaxZoom = *src.MaxZoom
	}
	if err := provider.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("tile_source: %w", err)
	}
	u, err := url.Parse(provider.TileURL(tile.NewCoordinate(provider.MinZoom, 0, 0)))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return cfg, nil, fmt.Errorf("tile_source: url must be http or https")
	}
	if !s.tileHostAllowed(u.Hostname()) {
		return cfg, nil, fmt.Errorf("tile_source: host %q is not allowed", u.Hostname())
	}
	cfg.Providers = map[string]tile.Provider{provider.Name: provider}
	cfg.Style.Provider = provider.Name

	fetcher := s.fetcher
	if src.Headers != nil {
		fetcher = newFetcher(s.base.Fetch, *src.Headers)
	}
	return cfg, []poster.Option{poster.WithFetcher(fetcher), poster.WithStore(tilecache.Nop{})}, nil
}

// handleRenderError handles errors from the render process
func (s *Server) handleRenderError(w http.ResponseWriter, err error, requestID *string) {
	var tileErr *tile.TileError
	if errors.As(err, &tileErr) {
		failedTiles := make([]FailedTile, len(tileErr.FailedTiles))
		for i, ft := range tileErr.FailedTiles {
			failedTiles[i] = FailedTile{
				Error: ft.Error,
				Tile:  fmt.Sprintf("%d/%d/%d", ft.Coord.Z, ft.Coord.X, ft.Coord.Y),
				Url:   ft.URL,
			}
		}

		response := TileErrorResponse{
			Error:           "TILE_SERVER_ERROR",
			Message:         tileErr.Message,
			FailedTiles:     failedTiles,
			SuccessfulTiles: tileErr.SuccessfulTiles,
			TotalTiles:      tileErr.TotalTiles,
			RequestId:       requestID,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(response)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TILE_SERVER_TIMEOUT",
			"Tile server requests timed out", requestID, nil)
		return
	}

	s.logger.Error("render failed", "request_id", *requestID, "error", err)
	s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Internal server error", requestID, nil)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, message string, requestID *string) {
	response := ValidationErrorResponse{
		Error:     validationError,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []ValidationError{
			{
				Field:   "request",
				Message: message,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
