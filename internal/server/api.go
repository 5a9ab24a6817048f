package server

import (
	"time"

	"github.com/kiesman99/posterize/internal/config"
)

// HealthStatus is the state reported by the health endpoint.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    *int         `json:"uptime,omitempty"`
	Version   *string      `json:"version,omitempty"`
}

// TileSource is an ad-hoc tile provider given with a request. Tiles from it
// are never cached.
type TileSource struct {
	URL     string             `json:"url"`
	Headers *map[string]string `json:"headers,omitempty"`
	MinZoom *int               `json:"min_zoom,omitempty"`
	MaxZoom *int               `json:"max_zoom,omitempty"`
}

// RenderRequest defines model for RenderRequest. Omitted style and canvas
// fields keep the server defaults.
type RenderRequest struct {
	Location   config.Location `json:"location"`
	Style      *config.Style   `json:"style,omitempty"`
	Canvas     *config.Canvas  `json:"canvas,omitempty"`
	TileSource *TileSource     `json:"tile_source,omitempty"`

	// Strict fails the request with TILE_SERVER_ERROR when any tile is missing
	// instead of returning the image with holes.
	Strict bool `json:"strict,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// ValidationError is one invalid field of a request.
type ValidationError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	RequestId        *string           `json:"request_id,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}

// FailedTile defines model for a missing tile in TileErrorResponse.
type FailedTile struct {
	Error string `json:"error"`
	Tile  string `json:"tile"`
	Url   string `json:"url"`
}

// TileErrorResponse defines model for TileErrorResponse.
type TileErrorResponse struct {
	Error           string       `json:"error"`
	Message         string       `json:"message"`
	FailedTiles     []FailedTile `json:"failed_tiles"`
	SuccessfulTiles int          `json:"successful_tiles"`
	TotalTiles      int          `json:"total_tiles"`
	RequestId       *string      `json:"request_id,omitempty"`
}

const validationError = "VALIDATION_ERROR"
