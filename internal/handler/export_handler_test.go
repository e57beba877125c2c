package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/schedule-sync/internal/service"
	"github.com/noah-isme/schedule-sync/pkg/export"
)

type fakeExports struct {
	format     export.Format
	result     *service.ExportResult
	err        error
	path       string
	openErr    error
	openTokens []string
}

func (f *fakeExports) Generate(_ context.Context, format export.Format) (*service.ExportResult, error) {
	f.format = format
	return f.result, f.err
}

func (f *fakeExports) Open(token string) (*service.ExportDownload, error) {
	f.openTokens = append(f.openTokens, token)
	if f.openErr != nil {
		return nil, f.openErr
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return &service.ExportDownload{File: file, Filename: "schedule-1.csv", ContentType: export.FormatCSV.ContentType()}, nil
}

func newExportRouter(exports *fakeExports) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterExportRoutes(router.Group("/api/v1"), NewExportHandler(exports))
	return router
}

func TestExportCreate(t *testing.T) {
	exports := &fakeExports{result: &service.ExportResult{ID: "1", Format: export.FormatPDF, URL: "/api/v1/exports/tok"}}
	router := newExportRouter(exports)

	w := performRequest(router, http.MethodPost, "/api/v1/schedule/exports?format=pdf", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var result service.ExportResult
	decodeEnvelope(t, w, &result)
	assert.Equal(t, "/api/v1/exports/tok", result.URL)
	assert.Equal(t, export.FormatPDF, exports.format)

	w = performRequest(router, http.MethodPost, "/api/v1/schedule/exports", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, export.FormatCSV, exports.format)
}

func TestExportCreateErrors(t *testing.T) {
	exports := &fakeExports{err: service.ErrNoSchedule}
	router := newExportRouter(exports)

	w := performRequest(router, http.MethodPost, "/api/v1/schedule/exports?format=docx", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = performRequest(router, http.MethodPost, "/api/v1/schedule/exports?format=csv", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_SCHEDULE", errorCode(t, w))
}

func TestExportDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	require.NoError(t, os.WriteFile(path, []byte("Дата,Пара\n"), 0o644))
	exports := &fakeExports{path: path}

	w := performRequest(newExportRouter(exports), http.MethodGet, "/api/v1/exports/signed-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"signed-token"}, exports.openTokens)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="schedule-1.csv"`)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "Дата,Пара\n", string(body))
}

func TestExportDownloadExpired(t *testing.T) {
	exports := &fakeExports{openErr: service.ErrExportExpired}
	w := performRequest(newExportRouter(exports), http.MethodGet, "/api/v1/exports/old", "")
	require.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "EXPORT_EXPIRED", errorCode(t, w))

	exports.openErr = errors.New("disk on fire")
	w = performRequest(newExportRouter(exports), http.MethodGet, "/api/v1/exports/old", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
