package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/internal/dto"
	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
)

type timetableRepository interface {
	Faculties(ctx context.Context) ([]dto.FacultyRow, error)
	Groups(ctx context.Context, facultyID string) ([]dto.GroupPayload, error)
	Schedule(ctx context.Context, groupID string, start time.Time, days int) ([]dto.ScheduleItemPayload, error)
}

// TimetableServiceConfig tunes timetable loading.
type TimetableServiceConfig struct {
	Location     *time.Location
	ScheduleDays int
}

// TimetableService runs the fetch → normalize pipeline for each resource.
type TimetableService struct {
	repo   timetableRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    TimetableServiceConfig
}

const facultiesCacheKey = "timetable:faculties"

func groupsCacheKey(facultyID string) string {
	return fmt.Sprintf("timetable:groups:%s", facultyID)
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(repo timetableRepository, cache *CacheService, logger *zap.Logger, cfg TimetableServiceConfig) *TimetableService {
	if cfg.Location == nil {
		cfg.Location = calendar.LoadLocation("")
	}
	if cfg.ScheduleDays <= 0 {
		cfg.ScheduleDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// Faculties returns the normalized faculty list.
func (s *TimetableService) Faculties(ctx context.Context) (models.FacultyList, error) {
	var cached models.FacultyList
	value, hit, err := s.cache.Remember(ctx, facultiesCacheKey, &cached, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.Faculties(ctx)
		if err != nil {
			return nil, err
		}
		return NormalizeFaculties(rows), nil
	})
	if err != nil {
		return models.FacultyList{}, err
	}
	if hit {
		s.logger.Debug("faculties served from cache")
		return *value.(*models.FacultyList), nil
	}
	return value.(models.FacultyList), nil
}

// Groups returns the normalized groups of a faculty.
func (s *TimetableService) Groups(ctx context.Context, facultyID string) ([]models.Group, error) {
	var cached []models.Group
	value, hit, err := s.cache.Remember(ctx, groupsCacheKey(facultyID), &cached, func(ctx context.Context) (interface{}, error) {
		payloads, err := s.repo.Groups(ctx, facultyID)
		if err != nil {
			return nil, err
		}
		return NormalizeGroups(facultyID, payloads), nil
	})
	if err != nil {
		return nil, err
	}
	if hit {
		return *value.(*[]models.Group), nil
	}
	return value.([]models.Group), nil
}

// InvalidateLists drops the cached faculty list and the cached groups of
// facultyID so the next reads go to the upstream.
func (s *TimetableService) InvalidateLists(ctx context.Context, facultyID string) error {
	if err := s.cache.Invalidate(ctx, facultiesCacheKey); err != nil {
		return err
	}
	if facultyID == "" {
		return nil
	}
	return s.cache.Invalidate(ctx, groupsCacheKey(facultyID))
}

// Schedule fetches the schedule of groupID for the week containing date.
// Schedules are never cached: each fetch replaces the previous one.
func (s *TimetableService) Schedule(ctx context.Context, groupID string, date time.Time) (*models.Schedule, error) {
	start := calendar.StartOfWeek(calendar.DateOnly(date, s.cfg.Location))
	end := start.AddDate(0, 0, s.cfg.ScheduleDays-1)
	items, err := s.repo.Schedule(ctx, groupID, start, s.cfg.ScheduleDays)
	if err != nil {
		return nil, err
	}
	window := ScheduleWindow{GroupID: groupID, StartDate: start, EndDate: end}
	schedule := NormalizeSchedule(window, items, s.cfg.Location, s.now())
	s.logger.Debug("schedule normalized",
		zap.String("group_id", groupID),
		zap.String("start", calendar.FormatServerDate(start, s.cfg.Location)),
		zap.Int("items", len(items)),
		zap.Int("days", len(schedule.Days)),
	)
	return schedule, nil
}
