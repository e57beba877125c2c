package models

import (
	"strings"
	"time"
)

// Faculty is a top-level academic subdivision that owns groups.
type Faculty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FacultyList is the normalized faculties response. MissingID holds names of
// faculties the server returned without an id; they cannot be queried.
type FacultyList struct {
	Faculties []Faculty `json:"faculties"`
	MissingID []string  `json:"missing_id,omitempty"`
}

// Group is a cohort of students sharing a timetable.
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	FacultyID string `json:"faculty_id"`
}

// Teacher identifies the lesson's lecturer.
type Teacher struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

// LessonType classifies a lesson.
type LessonType string

// Supported lesson types.
const (
	LessonTypeLecture    LessonType = "lecture"
	LessonTypePractice   LessonType = "practice"
	LessonTypeLaboratory LessonType = "laboratory"
	LessonTypeUnknown    LessonType = "unknown"
)

var lessonTypeLabels = map[string]LessonType{
	"лекция":              LessonTypeLecture,
	"практика":            LessonTypePractice,
	"лабораторная работа": LessonTypeLaboratory,
}

// ParseLessonType maps a server category label onto a LessonType.
func ParseLessonType(label string) LessonType {
	if t, ok := lessonTypeLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return t
	}
	return LessonTypeUnknown
}

// Lesson is a single class occurrence within a day.
type Lesson struct {
	ID         string     `json:"id"`
	PairNumber int        `json:"pair_number"`
	TimeStart  string     `json:"time_start"`
	TimeEnd    string     `json:"time_end"`
	Type       LessonType `json:"type"`
	Subject    string     `json:"subject"`
	Room       *string    `json:"room,omitempty"`
	Teacher    *Teacher   `json:"teacher,omitempty"`
	Groups     []string   `json:"groups"`
	OnlineLink *string    `json:"online_link,omitempty"`
}

// ScheduleDay groups the lessons of one calendar date.
type ScheduleDay struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Weekday string    `json:"weekday"`
	Lessons []Lesson  `json:"lessons"`
}

// Schedule is the result of one (group, 7-day window) query.
type Schedule struct {
	ID          string        `json:"id"`
	GroupID     string        `json:"group_id"`
	GroupName   string        `json:"group_name"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	Days        []ScheduleDay `json:"days"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Day returns the day matching date's calendar date, if the server returned one.
func (s *Schedule) Day(date time.Time) (*ScheduleDay, bool) {
	if s == nil {
		return nil, false
	}
	y, m, d := date.Date()
	for i := range s.Days {
		dy, dm, dd := s.Days[i].Date.Date()
		if dy == y && dm == m && dd == d {
			return &s.Days[i], true
		}
	}
	return nil, false
}

// Empty reports whether the schedule carries no days.
func (s *Schedule) Empty() bool {
	return s == nil || len(s.Days) == 0
}

// PlaceholderGroupName is used when the server response names no group.
func PlaceholderGroupName(groupID string) string {
	return "Group " + groupID
}
