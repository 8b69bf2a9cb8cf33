package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"dahdouh-ai/internal/storage"
	"dahdouh-ai/internal/transport/http/response"
)

type AssetStorer interface {
	Store(ctx context.Context, data []byte, contentType, suggestedName string) (*storage.Asset, error)
}

type UploadHandler struct {
	uploader  AssetStorer
	local     AssetStorer
	files     *storage.LocalStore
	maxUpload int64
}

// NewUploadHandler serves uploads through uploader and the tmp endpoints
// through local and files. local and files may be nil when tmp serving is off.
func NewUploadHandler(uploader, local AssetStorer, files *storage.LocalStore, maxUpload int64) *UploadHandler {
	return &UploadHandler{uploader: uploader, local: local, files: files, maxUpload: maxUpload}
}

// Upload stores the multipart field "file" with the configured backend.
func (h *UploadHandler) Upload(c *gin.Context) {
	asset, ok := h.store(c, h.uploader)
	if !ok {
		return
	}
	response.With(c, http.StatusOK, response.APIResponse{Success: true, Data: asset}, gin.H{"url": asset.URL})
}

// UploadImage always stores on local disk, served back by Tmp.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	asset, ok := h.store(c, h.local)
	if !ok {
		return
	}
	response.With(c, http.StatusOK, response.APIResponse{Success: true}, gin.H{
		"url":      asset.URL,
		"filename": asset.Key,
	})
}

func (h *UploadHandler) Tmp(c *gin.Context) {
	if h.files == nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}
	name := c.Query("filename")
	f, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.String(http.StatusNotFound, "File not found")
			return
		}
		c.String(http.StatusInternalServerError, "Error reading file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error reading file")
		return
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error reading file")
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.String(http.StatusInternalServerError, "Error reading file")
		return
	}
	c.Header("Content-Type", mtype.String())
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

func (h *UploadHandler) store(c *gin.Context, uploader AssetStorer) (*storage.Asset, bool) {
	if uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeStorageDisabled, "Uploads are disabled")
		return nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)

	upload, err := readUpload(c, "file", h.maxUpload)
	if err != nil {
		writeFormError(c, err)
		return nil, false
	}

	asset, err := uploader.Store(c.Request.Context(), upload.Data, upload.ContentType, upload.Filename)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrFileTooLarge):
			writeFormError(c, err)
		case errors.Is(err, storage.ErrStorageDisabled):
			response.Error(c, http.StatusServiceUnavailable, response.CodeStorageDisabled, "Uploads are disabled")
		default:
			response.Error(c, http.StatusBadGateway, response.CodeStorageFailed, "Upload failed")
		}
		return nil, false
	}
	return asset, true
}
