package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dahdouh-ai/internal/app"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/transport/http/middleware"
	"dahdouh-ai/internal/transport/http/response"
)

const (
	msgInvalidChatID = "Invalid chat ID"
	msgPromptEmpty   = "Prompt cannot be empty"
)

type ChatManager interface {
	Create(ctx context.Context, userID uint, name string) (*model.Chat, error)
	List(ctx context.Context, userID uint) ([]model.Chat, error)
	History(ctx context.Context, userID uint, chatID string, limit int) ([]model.Message, error)
	Rename(ctx context.Context, userID uint, chatID, name string) error
	Delete(ctx context.Context, userID uint, chatID string) error
}

type ChatHandler struct {
	chats ChatManager
}

type CreateChatRequest struct {
	Name string `json:"name"`
}

type RenameChatRequest struct {
	ChatID string `json:"chatId"`
	Name   string `json:"name"`
}

type DeleteChatRequest struct {
	ChatID string `json:"chatId"`
}

func NewChatHandler(chats ChatManager) *ChatHandler {
	return &ChatHandler{chats: chats}
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req CreateChatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	chat, err := h.chats.Create(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		writeChatError(c, err, "create chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeChatError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) Messages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := h.chats.History(c.Request.Context(), middleware.UserID(c), c.Query("chatId"), limit)
	if err != nil {
		writeChatError(c, err, "get messages failed")
		return
	}
	response.OK(c, messages)
}

func (h *ChatHandler) Rename(c *gin.Context) {
	var req RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.chats.Rename(c.Request.Context(), middleware.UserID(c), req.ChatID, req.Name); err != nil {
		writeChatError(c, err, "rename chat failed")
		return
	}
	response.With(c, http.StatusOK, response.APIResponse{Success: true, Message: "Chat Renamed"}, nil)
}

func (h *ChatHandler) Delete(c *gin.Context) {
	var req DeleteChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.chats.Delete(c.Request.Context(), middleware.UserID(c), req.ChatID); err != nil {
		writeChatError(c, err, "delete chat failed")
		return
	}
	response.With(c, http.StatusOK, response.APIResponse{Success: true, Message: "Chat Deleted"}, nil)
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "User not authenticated")
	case errors.Is(err, app.ErrInvalidChatID):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidChatID, msgInvalidChatID)
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, msgInvalidChatID)
	case errors.Is(err, app.ErrInvalidChatName):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidChatName, "Chat name must be 1 to 128 characters")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
