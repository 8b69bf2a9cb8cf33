package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dahdouh-ai/internal/app"
	"dahdouh-ai/internal/storage"
	"dahdouh-ai/internal/transport/http/middleware"
	"dahdouh-ai/internal/transport/http/response"
)

// formOverhead leaves room for the text fields of a multipart turn.
const formOverhead = 1 << 20

type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, input app.TurnInput) (*app.TurnResult, error)
}

type TurnHandler struct {
	turns     TurnSubmitter
	maxUpload int64
}

// TurnRequest is the JSON form of a turn. Image is the URL of an earlier upload.
type TurnRequest struct {
	ChatID string `json:"chatId"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

func NewTurnHandler(turns TurnSubmitter, maxUpload int64) *TurnHandler {
	return &TurnHandler{turns: turns, maxUpload: maxUpload}
}

// Submit accepts {chatId, prompt, image?} as JSON or chatId, prompt, file as multipart.
func (h *TurnHandler) Submit(c *gin.Context) {
	input := app.TurnInput{UserID: middleware.UserID(c)}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			writeFormError(c, err)
			return
		}
		input.ChatID = c.PostForm("chatId")
		input.Prompt = c.PostForm("prompt")

		if _, err := c.FormFile("file"); err == nil {
			upload, err := readUpload(c, "file", h.maxUpload)
			if err != nil {
				writeFormError(c, err)
				return
			}
			input.Image = &app.ImageInput{
				Data:        upload.Data,
				ContentType: upload.ContentType,
				Filename:    upload.Filename,
			}
		} else if !errors.Is(err, http.ErrMissingFile) {
			writeFormError(c, err)
			return
		}
	} else {
		var req TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
		input.ChatID = req.ChatID
		input.Prompt = req.Prompt
		input.ImageURL = req.Image
	}

	result, err := h.turns.SubmitTurn(c.Request.Context(), input)
	if err != nil {
		writeTurnError(c, err)
		return
	}

	response.With(c, http.StatusOK, response.APIResponse{Success: true, Data: result.Message}, gin.H{
		"chatId":      result.ChatID,
		"userMessage": result.UserMessage,
		"modality":    result.Modality,
		"persisted":   result.Persisted,
		"ephemeral":   !result.Durable,
	})
}

func writeTurnError(c *gin.Context, err error) {
	var turnErr *app.TurnError
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "User not authenticated")
	case errors.Is(err, app.ErrPromptEmpty):
		response.Error(c, http.StatusBadRequest, response.CodePromptEmpty, msgPromptEmpty)
	case errors.Is(err, app.ErrInvalidChatID):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidChatID, msgInvalidChatID)
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, msgInvalidChatID)
	case errors.Is(err, app.ErrImageRejected), errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidImage, "Image must be a file uploaded to this service")
	case errors.Is(err, storage.ErrFileTooLarge), errors.Is(err, storage.ErrEmptyFile):
		writeFormError(c, err)
	case errors.As(err, &turnErr):
		response.With(c, http.StatusBadGateway,
			response.APIResponse{Code: response.CodeGenerationFailed, Message: turnErr.Err.Error()},
			gin.H{"userMessageSaved": turnErr.UserMessageSaved})
	case errors.Is(err, app.ErrStorage):
		response.With(c, http.StatusBadGateway,
			response.APIResponse{Code: response.CodeStorageFailed, Message: "Image upload failed"},
			gin.H{"userMessageSaved": false})
	default:
		response.With(c, http.StatusInternalServerError,
			response.APIResponse{Code: response.CodeInternalServer, Message: "submit turn failed"},
			gin.H{"userMessageSaved": false})
	}
}
