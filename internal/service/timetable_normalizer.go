package service

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/schedule-sync/internal/dto"
	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	"github.com/noah-isme/schedule-sync/pkg/textutil"
)

const roomSeparator = " • "

// NormalizeFaculties maps raw `[id, name]` rows onto a de-duplicated, sorted
// faculty list. Named rows without an id land in MissingID.
func NormalizeFaculties(rows []dto.FacultyRow) models.FacultyList {
	result := models.FacultyList{Faculties: []models.Faculty{}}
	seen := make(map[string]struct{}, len(rows))
	seenMissing := make(map[string]struct{})
	for _, row := range rows {
		name := strings.TrimSpace(row.Name())
		if name == "" {
			continue
		}
		id := strings.TrimSpace(row.ID())
		if id == "" {
			if _, dup := seenMissing[name]; !dup {
				seenMissing[name] = struct{}{}
				result.MissingID = append(result.MissingID, name)
			}
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result.Faculties = append(result.Faculties, models.Faculty{ID: id, Name: name})
	}
	sort.SliceStable(result.Faculties, func(i, j int) bool {
		return lessByName(result.Faculties[i].Name, result.Faculties[i].ID, result.Faculties[j].Name, result.Faculties[j].ID)
	})
	sort.SliceStable(result.MissingID, func(i, j int) bool {
		return textutil.Compare(result.MissingID[i], result.MissingID[j]) < 0
	})
	return result
}

// NormalizeGroups maps raw group records of a faculty onto a de-duplicated,
// sorted group list.
func NormalizeGroups(facultyID string, payloads []dto.GroupPayload) []models.Group {
	groups := make([]models.Group, 0, len(payloads))
	seen := make(map[string]struct{}, len(payloads))
	for _, p := range payloads {
		id := strings.TrimSpace(p.ID.String())
		if id == "" {
			continue
		}
		name := strings.TrimSpace(p.Name.String())
		fullName := strings.TrimSpace(p.Field.String())
		if name == "" {
			name = fullName
		}
		if name == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		groups = append(groups, models.Group{ID: id, Name: name, FullName: fullName, FacultyID: facultyID})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return lessByName(groups[i].Name, groups[i].ID, groups[j].Name, groups[j].ID)
	})
	return groups
}

// ScheduleWindow identifies the query a schedule batch answers.
type ScheduleWindow struct {
	GroupID   string
	StartDate time.Time
	EndDate   time.Time
}

// NormalizeSchedule buckets raw schedule items by date into a Schedule.
// Items with an unparseable date are skipped.
func NormalizeSchedule(window ScheduleWindow, items []dto.ScheduleItemPayload, loc *time.Location, now time.Time) *models.Schedule {
	if loc == nil {
		loc = calendar.LoadLocation("")
	}
	groupName := ""
	type bucket struct {
		date    time.Time
		lessons []models.Lesson
	}
	buckets := make(map[string]*bucket)
	for _, item := range items {
		date, err := calendar.ParseServerDate(item.Date.String(), loc)
		if err != nil {
			continue
		}
		lesson, hint := normalizeLesson(item)
		if groupName == "" && hint != "" {
			groupName = hint
		}
		key := calendar.FormatServerDate(date, loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{date: date}
			buckets[key] = b
		}
		b.lessons = append(b.lessons, lesson)
	}
	if groupName == "" {
		groupName = models.PlaceholderGroupName(window.GroupID)
	}

	days := make([]models.ScheduleDay, 0, len(buckets))
	for _, b := range buckets {
		lessons := b.lessons
		sort.SliceStable(lessons, func(i, j int) bool {
			if lessons[i].PairNumber != lessons[j].PairNumber {
				return lessons[i].PairNumber < lessons[j].PairNumber
			}
			return lessons[i].TimeStart < lessons[j].TimeStart
		})
		days = append(days, models.ScheduleDay{
			ID:      uuid.NewString(),
			Date:    b.date,
			Weekday: calendar.WeekdayName(b.date),
			Lessons: lessons,
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	return &models.Schedule{
		ID:          uuid.NewString(),
		GroupID:     window.GroupID,
		GroupName:   groupName,
		StartDate:   window.StartDate,
		EndDate:     window.EndDate,
		Days:        days,
		LastUpdated: now,
	}
}

// normalizeLesson converts one item and returns the first non-empty student
// group name it mentions.
func normalizeLesson(item dto.ScheduleItemPayload) (models.Lesson, string) {
	start := calendar.TruncateClock(item.StartTime.String())
	lesson := models.Lesson{
		ID:         uuid.NewString(),
		PairNumber: calendar.PairNumberFor(start),
		TimeStart:  start,
		TimeEnd:    calendar.TruncateClock(item.EndTime.String()),
		Type:       models.LessonTypeUnknown,
		Groups:     []string{},
	}
	data := item.LessonData
	if data == nil {
		return lesson, ""
	}
	if data.CourseType != nil {
		lesson.Type = models.ParseLessonType(data.CourseType.Name.String())
	}
	if data.CourseSubject != nil {
		lesson.Subject = strings.TrimSpace(data.CourseSubject.Name.String())
	}
	lesson.Teacher = firstTeacher(data.TeacherList)
	lesson.Room = composeRoom(data.StudyPlace)
	if link := strings.TrimSpace(data.OnlineLink.String()); link != "" {
		lesson.OnlineLink = &link
	}

	hint := ""
	for _, student := range data.StudentList {
		name := strings.TrimSpace(student.GroupName.String())
		if name == "" {
			continue
		}
		if hint == "" {
			hint = name
		}
		lesson.Groups = append(lesson.Groups, name)
	}
	return lesson, hint
}

func firstTeacher(list []dto.TeacherPayload) *models.Teacher {
	if len(list) == 0 {
		return nil
	}
	first := list[0]
	name := strings.TrimSpace(first.ShortName.String())
	if name == "" {
		name = strings.TrimSpace(first.FullName.String())
	}
	if name == "" {
		return nil
	}
	teacher := &models.Teacher{Name: name}
	if email := strings.TrimSpace(first.Email.String()); email != "" {
		teacher.Email = &email
	}
	return teacher
}

func composeRoom(place *dto.StudyPlacePayload) *string {
	if place == nil {
		return nil
	}
	name := strings.TrimSpace(place.Name.String())
	owner := strings.TrimSpace(place.OwnerName.String())
	var room string
	switch {
	case name != "" && owner != "":
		room = name + roomSeparator + owner
	case name != "":
		room = name
	default:
		return nil
	}
	return &room
}

func lessByName(nameA, idA, nameB, idB string) bool {
	if c := textutil.Compare(nameA, nameB); c != 0 {
		return c < 0
	}
	return idA < idB
}
