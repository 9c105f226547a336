package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"nocaps-server/internal/domain"
	"nocaps-server/internal/services"
	"nocaps-server/pkg/logger"
)

type MatchHandler struct {
	matches    *services.MatchService
	iceServers []webrtc.ICEServer
	log        logger.Logger
}

type CreateMatchRequest struct {
	Title string `json:"title"`
	TeamA string `json:"teamA"`
	TeamB string `json:"teamB"`
	Sport string `json:"sport"`
	Venue string `json:"venue"`
}

type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func NewMatchHandler(matches *services.MatchService, iceServers []webrtc.ICEServer, log logger.Logger) *MatchHandler {
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{}
	}
	return &MatchHandler{
		matches:    matches,
		iceServers: iceServers,
		log:        log,
	}
}

// Register mounts the match API and the status endpoints on e.
func (h *MatchHandler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.POST("/matches", h.CreateMatch)
	api.GET("/matches", h.ListMatches)
	api.GET("/matches/:code", h.GetMatch)
	api.GET("/ice-servers", h.ICEServers)
}

func (h *MatchHandler) CreateMatch(c echo.Context) error {
	var req CreateMatchRequest
	if err := c.Bind(&req); err != nil {
		h.log.Debug("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	match, err := h.matches.CreateMatch(c.Request().Context(), domain.CreateMatchParams{
		Title: req.Title,
		TeamA: req.TeamA,
		TeamB: req.TeamB,
		Sport: req.Sport,
		Venue: req.Venue,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "title, teamA, and teamB are required"})
		}
		h.log.Error("Failed to create match", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create match"})
	}

	return c.JSON(http.StatusCreated, match)
}

func (h *MatchHandler) ListMatches(c echo.Context) error {
	return c.JSON(http.StatusOK, h.matches.ListMatches(c.Request().Context()))
}

func (h *MatchHandler) GetMatch(c echo.Context) error {
	match, err := h.matches.GetMatch(c.Request().Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, domain.ErrMatchNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "match not found"})
		}
		h.log.Error("Failed to get match", "match_code", c.Param("code"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get match"})
	}
	return c.JSON(http.StatusOK, match)
}

func (h *MatchHandler) ICEServers(c echo.Context) error {
	return c.JSON(http.StatusOK, ICEServersResponse{ICEServers: h.iceServers})
}

func (h *MatchHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "nocaps server running"})
}

func (h *MatchHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "nocaps-server",
		"timestamp": time.Now().Format(time.RFC3339),
		"stats":     h.matches.Stats(),
	})
}
