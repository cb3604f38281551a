package triage

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/triage/triage/internal/platform/auth"
	"github.com/triage/triage/pkg/pagination"
)

type Handler struct {
	svc      *Service
	chats    ChatRepository
	messages MessageRepository
}

func NewHandler(svc *Service, chats ChatRepository, messages MessageRepository) *Handler {
	return &Handler{svc: svc, chats: chats, messages: messages}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/triage/turn", h.Turn)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:id/messages", h.ListMessages)
}

func (h *Handler) Turn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	resp, err := h.svc.HandleTurn(c.Request().Context(), userID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListChats(c echo.Context) error {
	if h.chats == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat history not available")
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	p := pagination.FromContext(c)
	chats, total, err := h.chats.ListByUser(c.Request().Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(chats, total, p.Limit, p.Offset))
}

func (h *Handler) ListMessages(c echo.Context) error {
	if h.chats == nil || h.messages == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat history not available")
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chat id")
	}

	chat, err := h.chats.GetByID(c.Request().Context(), chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "chat not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if chat.UserID != auth.UserIDFromContext(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}

	p := pagination.FromContext(c)
	msgs, total, err := h.messages.ListByChat(c.Request().Context(), chatID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(msgs, total, p.Limit, p.Offset))
}
