package repository

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/internal/dto"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	"github.com/noah-isme/schedule-sync/pkg/upstream"
)

type fetcher interface {
	Fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
}

// TimetablePaths names the upstream `path` values for each resource.
type TimetablePaths struct {
	Faculties string
	Groups    string
	Schedule  string
}

// TimetableRepository reads raw timetable payloads through the fetch gateway.
type TimetableRepository struct {
	gateway  fetcher
	paths    TimetablePaths
	location *time.Location
	logger   *zap.Logger
}

// NewTimetableRepository constructs a timetable repository.
func NewTimetableRepository(gateway fetcher, paths TimetablePaths, location *time.Location, logger *zap.Logger) *TimetableRepository {
	if paths.Faculties == "" {
		paths.Faculties = "faculties"
	}
	if paths.Groups == "" {
		paths.Groups = "groups"
	}
	if paths.Schedule == "" {
		paths.Schedule = "schedule"
	}
	if location == nil {
		location = calendar.LoadLocation("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableRepository{gateway: gateway, paths: paths, location: location, logger: logger}
}

// Faculties returns raw `[id, name]` rows.
func (r *TimetableRepository) Faculties(ctx context.Context) ([]dto.FacultyRow, error) {
	raw, err := r.gateway.Fetch(ctx, r.paths.Faculties, nil)
	if err != nil {
		return nil, err
	}
	items, err := splitList(raw)
	if err != nil {
		return nil, err
	}
	rows := make([]dto.FacultyRow, 0, len(items))
	for i, item := range items {
		var row dto.FacultyRow
		if err := json.Unmarshal(item, &row); err != nil {
			r.logger.Debug("skipping malformed faculty row", zap.Int("index", i), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Groups returns raw group records for a faculty.
func (r *TimetableRepository) Groups(ctx context.Context, facultyID string) ([]dto.GroupPayload, error) {
	params := url.Values{}
	params.Set("facultyId", facultyID)
	raw, err := r.gateway.Fetch(ctx, r.paths.Groups, params)
	if err != nil {
		return nil, err
	}
	items, err := splitList(raw)
	if err != nil {
		return nil, err
	}
	groups := make([]dto.GroupPayload, 0, len(items))
	for i, item := range items {
		var group dto.GroupPayload
		if err := json.Unmarshal(item, &group); err != nil {
			r.logger.Debug("skipping malformed group", zap.Int("index", i), zap.Error(err))
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Schedule returns raw schedule items for a group over days starting at start.
func (r *TimetableRepository) Schedule(ctx context.Context, groupID string, start time.Time, days int) ([]dto.ScheduleItemPayload, error) {
	params := url.Values{}
	params.Set("scheduleType", "gr")
	params.Set("parameter", groupID)
	params.Set("days", strconv.Itoa(days))
	params.Set("startDate", calendar.FormatServerDate(start, r.location))
	raw, err := r.gateway.Fetch(ctx, r.paths.Schedule, params)
	if err != nil {
		return nil, err
	}
	items, err := splitList(raw)
	if err != nil {
		return nil, err
	}
	result := make([]dto.ScheduleItemPayload, 0, len(items))
	for i, item := range items {
		var payload dto.ScheduleItemPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			r.logger.Debug("skipping malformed schedule item", zap.String("group_id", groupID), zap.Int("index", i), zap.Error(err))
			continue
		}
		result = append(result, payload)
	}
	return result, nil
}

// splitList decodes the outer list so a single bad record cannot fail the batch.
func splitList(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := upstream.Decode(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
