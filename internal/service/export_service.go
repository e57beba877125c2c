package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
	"github.com/noah-isme/schedule-sync/pkg/export"
	"github.com/noah-isme/schedule-sync/pkg/storage"
)

const exportDir = "exports"

// Schedule export column headers.
const (
	columnDate    = "Дата"
	columnWeekday = "День"
	columnPair    = "Пара"
	columnTime    = "Время"
	columnSubject = "Дисциплина"
	columnType    = "Тип"
	columnTeacher = "Преподаватель"
	columnRoom    = "Аудитория"
	columnGroups  = "Группы"
	columnLink    = "Ссылка"
)

var scheduleHeaders = []string{columnDate, columnWeekday, columnPair, columnTime, columnSubject, columnType, columnTeacher, columnRoom, columnGroups, columnLink}

var lessonTypeTitles = map[models.LessonType]string{
	models.LessonTypeLecture:    "Лекция",
	models.LessonTypePractice:   "Практика",
	models.LessonTypeLaboratory: "Лабораторная работа",
}

// Export errors.
var (
	ErrNoSchedule    = appErrors.New("NO_SCHEDULE", http.StatusConflict, "no schedule loaded to export")
	ErrExportExpired = appErrors.New("EXPORT_EXPIRED", http.StatusGone, "download link expired")
)

type scheduleSource interface {
	Snapshot() models.SelectionSnapshot
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(dir string, ttl time.Duration) ([]string, error)
}

// DatasetRenderer encodes a dataset into a file format.
type DatasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled   bool
	APIPrefix string
	Location  *time.Location
	Renderers map[export.Format]DatasetRenderer
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	ID        string        `json:"id"`
	Format    export.Format `json:"format"`
	Filename  string        `json:"filename"`
	URL       string        `json:"url"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ExportDownload is an opened export file ready to be streamed.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders the selected week and hands out signed download links.
type ExportService struct {
	source    scheduleSource
	storage   exportStorage
	signer    *storage.SignedURLSigner
	renderers map[export.Format]DatasetRenderer
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Missing renderers default to
// the CSV, PDF (built-in font) and XLSX exporters.
func NewExportService(source scheduleSource, files exportStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = calendar.LoadLocation("")
	}
	renderers := map[export.Format]DatasetRenderer{
		export.FormatCSV:  export.NewCSVExporter(),
		export.FormatPDF:  export.NewPDFExporter(""),
		export.FormatXLSX: export.NewXLSXExporter(),
	}
	for format, r := range cfg.Renderers {
		renderers[format] = r
	}
	return &ExportService{
		source:    source,
		storage:   files,
		signer:    signer,
		renderers: renderers,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enabled reports whether exports are configured.
func (s *ExportService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.storage != nil && s.signer != nil
}

// Generate renders the currently selected schedule in format and stores it.
func (s *ExportService) Generate(ctx context.Context, format export.Format) (*ExportResult, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrDisabled, "exports are disabled")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	snap := s.source.Snapshot()
	if snap.Schedule == nil || snap.SelectedGroup == nil {
		return nil, ErrNoSchedule
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dataset := BuildScheduleDataset(snap, s.cfg.Location)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	relPath, err := s.storage.Save(path.Join(exportDir, id+"."+string(format)), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	result := &ExportResult{
		ID:        id,
		Format:    format,
		Filename:  exportFilename(snap, format, s.cfg.Location),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Token:     token,
		ExpiresAt: expiresAt,
	}
	s.logger.Info("schedule exported",
		zap.String("export_id", id),
		zap.String("format", string(format)),
		zap.String("group_id", snap.SelectedGroup.ID),
		zap.Int("rows", len(dataset.Rows)),
	)
	return result, nil
}

// Open validates token and opens the stored export.
func (s *ExportService) Open(token string) (*ExportDownload, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrDisabled, "exports are disabled")
	}
	id, relPath, _, err := s.signer.Parse(token, false)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, ErrExportExpired
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrExportExpired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	format := export.Format(strings.TrimPrefix(path.Ext(relPath), "."))
	return &ExportDownload{
		File:        file,
		Filename:    "schedule-" + id + "." + string(format),
		ContentType: format.ContentType(),
	}, nil
}

// Cleanup removes exports older than the download link lifetime.
func (s *ExportService) Cleanup(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted, err := s.storage.CleanupOlderThan(exportDir, s.signer.TTL())
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

// BuildScheduleDataset flattens the selected week into one row per lesson.
func BuildScheduleDataset(snap models.SelectionSnapshot, loc *time.Location) export.Dataset {
	dataset := export.Dataset{Headers: scheduleHeaders, Rows: []map[string]string{}}
	if snap.SelectedGroup != nil {
		dataset.Title = snap.SelectedGroup.Name
	}
	if snap.Schedule == nil {
		return dataset
	}
	if snap.Schedule.GroupName != "" {
		dataset.Title = snap.Schedule.GroupName
	}
	dataset.Title = fmt.Sprintf("%s, %s – %s", dataset.Title,
		calendar.FormatServerDate(snap.Schedule.StartDate, loc),
		calendar.FormatServerDate(snap.Schedule.EndDate, loc))

	for _, day := range snap.Schedule.Days {
		date := calendar.FormatServerDate(day.Date, loc)
		for _, lesson := range day.Lessons {
			row := map[string]string{
				columnDate:    date,
				columnWeekday: day.Weekday,
				columnTime:    lesson.TimeStart + "–" + lesson.TimeEnd,
				columnSubject: lesson.Subject,
				columnType:    lessonTypeTitles[lesson.Type],
				columnGroups:  strings.Join(lesson.Groups, ", "),
			}
			if lesson.PairNumber > 0 {
				row[columnPair] = strconv.Itoa(lesson.PairNumber)
			}
			if lesson.Teacher != nil {
				row[columnTeacher] = lesson.Teacher.Name
			}
			if lesson.Room != nil {
				row[columnRoom] = *lesson.Room
			}
			if lesson.OnlineLink != nil {
				row[columnLink] = *lesson.OnlineLink
			}
			dataset.Rows = append(dataset.Rows, row)
		}
	}
	return dataset
}

func exportFilename(snap models.SelectionSnapshot, format export.Format, loc *time.Location) string {
	name := snap.SelectedGroup.Name
	if name == "" {
		name = snap.SelectedGroup.ID
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("%s_%s.%s", name, calendar.FormatServerDate(snap.WeekStart, loc), format)
}
