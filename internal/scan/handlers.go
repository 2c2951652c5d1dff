package scan

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meghal86/guardian/internal/logging"
	"github.com/meghal86/guardian/internal/validation"
)

// Handler provides HTTP endpoints for wallet scans.
type Handler struct {
	orchestrator *Orchestrator
	store        Store
}

// NewHandler creates a new scan handler.
func NewHandler(orchestrator *Orchestrator, store Store) *Handler {
	return &Handler{orchestrator: orchestrator, store: store}
}

// RegisterRoutes sets up scan routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/scan", h.StartScan)
	r.GET("/scan/stream", h.StreamScan)
	r.GET("/scans/:address", h.ListScans)
}

// ScanRequest is the body of POST /v1/scan.
type ScanRequest struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

func (h *Handler) bindScanRequest(c *gin.Context) (ScanRequest, bool) {
	var req ScanRequest
	if c.Request.Method == http.MethodGet {
		req.Address = c.Query("address")
		req.Network = c.Query("network")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return req, false
	}

	req.Address = validation.SanitizeAddress(req.Address)
	if req.Network == "" {
		req.Network = "ethereum"
	}

	if errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.ValidAddress("address", req.Address),
		validation.ValidNetwork("network", req.Network),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": errs.Error(),
			"details": errs,
		})
		return req, false
	}
	return req, true
}

// StartScan handles POST /v1/scan. It blocks until the scan finishes
// (bounded by the global deadline) and returns the full result.
func (h *Handler) StartScan(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	result := h.orchestrator.Run(c.Request.Context(), req.Address, req.Network, nil)

	if result.Unavailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "upstream_unavailable",
			"message": "All risk probes are currently unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// StreamScan handles GET /v1/scan/stream. It runs the scan while
// streaming progress milestones as server-sent events, then closes the
// stream with the final result:
//
//	event: progress  data: {probe, status, percentComplete}
//	event: result    data: {score, grade, factors, ...}
func (h *Handler) StreamScan(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// Progress events arrive from the orchestration goroutine; the
	// buffer covers all four probes so emitting never blocks a probe.
	events := make(chan ProgressEvent, 4)
	done := make(chan *Result, 1)
	go func() {
		done <- h.orchestrator.Run(c.Request.Context(), req.Address, req.Network, func(ev ProgressEvent) {
			events <- ev
		})
	}()

	for {
		select {
		case ev := <-events:
			writeSSE(c.Writer, "progress", ev)

		case result := <-done:
			// Drain progress emitted after the final select raced.
			for {
				select {
				case ev := <-events:
					writeSSE(c.Writer, "progress", ev)
					continue
				default:
				}
				break
			}
			writeSSE(c.Writer, "result", result)
			return

		case <-c.Request.Context().Done():
			// Client disconnected; the orchestrator finishes on its own
			// and the probes keep warming the cache.
			return
		}
	}
}

func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	io.WriteString(w, "event: "+event+"\n")
	io.WriteString(w, "data: "+string(payload)+"\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// ListScans handles GET /v1/scans/:address.
func (h *Handler) ListScans(c *gin.Context) {
	address := c.Param("address")
	network := c.Query("network")
	if network == "" {
		network = "ethereum"
	}

	if errs := validation.Validate(
		validation.ValidAddress("address", address),
		validation.ValidNetwork("network", network),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": errs.Error(),
		})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := h.store.ListByAddress(c.Request.Context(), address, network, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list scan history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_failed",
			"message": "Failed to load scan history",
		})
		return
	}
	if results == nil {
		results = []*Result{}
	}

	c.JSON(http.StatusOK, gin.H{
		"scans": results,
		"count": len(results),
	})
}
