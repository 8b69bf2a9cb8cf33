package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dahdouh-ai/internal/storage"
	"dahdouh-ai/internal/transport/http/response"
)

type upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// readUpload buffers one multipart file, rejecting files over maxBytes.
func readUpload(c *gin.Context, field string, maxBytes int64) (*upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", storage.ErrFileTooLarge, fh.Size)
	}
	if fh.Size == 0 {
		return nil, storage.ErrEmptyFile
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file failed: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file failed: %w", err)
	}
	return &upload{
		Data:        data,
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
	}, nil
}

func writeFormError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, http.ErrMissingFile):
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "No file uploaded")
	case errors.Is(err, storage.ErrEmptyFile):
		response.Error(c, http.StatusBadRequest, response.CodeFileRequired, "Uploaded file is empty")
	case errors.Is(err, storage.ErrFileTooLarge), errors.As(err, &maxErr):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "File is too large")
	default:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
	}
}
