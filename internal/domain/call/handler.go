package call

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
)

// RoomAuthorizer reports whether userID may join roomID.
type RoomAuthorizer func(ctx context.Context, userID, roomID string) bool

type Handler struct {
	issuer    *TokenIssuer
	apiKey    string
	authorize RoomAuthorizer
	logger    zerolog.Logger
}

// NewHandler serves join tokens. A nil authorize admits any authenticated caller.
func NewHandler(issuer *TokenIssuer, apiKey string, authorize RoomAuthorizer, logger zerolog.Logger) *Handler {
	return &Handler{issuer: issuer, apiKey: apiKey, authorize: authorize, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.Any("/call/token", h.JoinToken)
	api.GET("/call/api-key", h.APIKey)
}

type errorBody struct {
	Error string `json:"error"`
}

type joinRequest struct {
	RoomID   string `json:"roomID"`
	UserID   string `json:"userID"`
	UserName string `json:"userName"`
}

func (h *Handler) JoinToken(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
		return c.JSON(http.StatusMethodNotAllowed, errorBody{Error: "Method Not Allowed"})
	}

	var req joinRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
	}
	if req.RoomID == "" || req.UserID == "" || req.UserName == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Missing required parameters: roomID, userID, userName"})
	}

	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) {
		if caller := auth.UserIDFromContext(ctx); caller != "" && caller != req.UserID {
			return c.JSON(http.StatusForbidden, errorBody{Error: "cannot request a token for another user"})
		}
		if h.authorize != nil && !h.authorize(ctx, req.UserID, req.RoomID) {
			return c.JSON(http.StatusForbidden, errorBody{Error: "not a participant of this room"})
		}
	}

	token, err := h.issuer.Issue(req.RoomID, req.UserID, req.UserName)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", req.RoomID).Msg("generate join token")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to generate token"})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) APIKey(c echo.Context) error {
	if h.apiKey == "" {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "API key is not configured"})
	}
	return c.JSON(http.StatusOK, map[string]string{"apiKey": h.apiKey})
}
