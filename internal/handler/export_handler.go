package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/schedule-sync/internal/service"
	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
	"github.com/noah-isme/schedule-sync/pkg/export"
	"github.com/noah-isme/schedule-sync/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, format export.Format) (*service.ExportResult, error)
	Open(token string) (*service.ExportDownload, error)
}

// ExportHandler serves schedule exports.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create godoc
// @Summary Export the selected week
// @Tags Exports
// @Produce json
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	format, ok := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx"))
		return
	}
	result, err := h.exports.Generate(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a generated export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	disposition := fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", download.Filename, url.PathEscape(download.Filename))
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": disposition,
		"Cache-Control":       "private, no-store",
	})
}
