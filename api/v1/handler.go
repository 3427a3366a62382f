package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"exportsite/internal/pageviews"
)

const errPathRequired = "Path is required"

// TrackPayload is the body of a tracking call. Only Path is required.
type TrackPayload struct {
	Path         string `json:"path"`
	PageName     string `json:"pageName"`
	PageType     string `json:"pageType"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	ResourceSlug string `json:"resourceSlug"`
	SessionID    string `json:"sessionId"`
	Referer      string `json:"referer"`
}

// Collector accepts a tracking call for background processing.
type Collector interface {
	Collect(input *pageviews.CollectInput) error
}

// RejectionRecorder counts tracking calls answered with 400.
type RejectionRecorder interface {
	PageViewRejected()
}

// TrackHandler serves the public tracking endpoint. It never lets a
// visitor see a server-side failure: once the path is present the answer
// is 202.
type TrackHandler struct {
	collector  Collector
	rejections RejectionRecorder
	logger     *slog.Logger
}

func NewTrackHandler(collector Collector, rejections RejectionRecorder, logger *slog.Logger) *TrackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackHandler{
		collector:  collector,
		rejections: rejections,
		logger:     logger,
	}
}

// Track handles POST /api/track. The body is parsed from raw bytes because
// sendBeacon posts JSON as text/plain.
func (h *TrackHandler) Track(c *fiber.Ctx) (err error) {
	setCORSHeaders(c)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic while tracking page view", slog.String("panic", fmt.Sprint(r)))
			err = accepted(c)
		}
	}()

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return h.reject(c)
	}

	if !json.Valid(body) {
		h.logger.Debug("Ignoring malformed tracking payload", slog.Int("bytes", len(body)))
		return accepted(c)
	}
	payload, ok := decodePayload(body)
	if !ok || strings.TrimSpace(payload.Path) == "" {
		return h.reject(c)
	}

	referer := payload.Referer
	if referer == "" {
		referer = utils.CopyString(c.Get(fiber.HeaderReferer))
	}

	input := &pageviews.CollectInput{
		Path:         payload.Path,
		PageName:     payload.PageName,
		PageType:     payload.PageType,
		ResourceType: payload.ResourceType,
		ResourceID:   payload.ResourceID,
		ResourceSlug: payload.ResourceSlug,
		SessionID:    payload.SessionID,
		Referer:      referer,
		IPAddress:    clientIP(c),
		UserAgent:    utils.CopyString(c.Get(fiber.HeaderUserAgent)),
	}

	if err := h.collector.Collect(input); err != nil {
		if errors.Is(err, pageviews.ErrPathRequired) {
			return h.reject(c)
		}
		h.logger.Warn("Failed to collect page view",
			slog.String("path", input.Path),
			slog.Any("error", err))
	}

	return accepted(c)
}

// decodePayload reads a JSON object into a TrackPayload. Path must be a
// string; optional fields take strings or numbers and default to empty for
// anything else. It reports false when body is not an object.
func decodePayload(body []byte) (TrackPayload, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return TrackPayload{}, false
	}

	var payload TrackPayload
	if raw, ok := fields["path"]; ok {
		_ = json.Unmarshal(raw, &payload.Path)
	}
	payload.PageName = stringField(fields["pageName"])
	payload.PageType = stringField(fields["pageType"])
	payload.ResourceType = stringField(fields["resourceType"])
	payload.ResourceID = stringField(fields["resourceId"])
	payload.ResourceSlug = stringField(fields["resourceSlug"])
	payload.SessionID = stringField(fields["sessionId"])
	payload.Referer = stringField(fields["referer"])
	return payload, true
}

// stringField coerces a raw JSON value: strings as-is, numbers as their
// decimal text, everything else empty.
func stringField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	default:
		return ""
	}
}

// Options answers CORS preflight for the tracking endpoint.
func (h *TrackHandler) Options(c *fiber.Ctx) error {
	setCORSHeaders(c)
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
	return c.SendStatus(http.StatusOK)
}

func (h *TrackHandler) reject(c *fiber.Ctx) error {
	if h.rejections != nil {
		h.rejections.PageViewRejected()
	}
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errPathRequired})
}

func accepted(c *fiber.Ctx) error {
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"success": true})
}

func setCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
}
