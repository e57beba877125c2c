package dto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString accepts JSON strings, numbers, booleans and null. The timetable
// server is inconsistent about id types.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
	case '{', '[':
		// nested values carry no usable scalar
		*f = ""
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
				*f = FlexString(strconv.FormatInt(i, 10))
				return nil
			}
			*f = FlexString(n.String())
			return nil
		}
		*f = FlexString(strings.TrimSpace(string(data)))
	}
	return nil
}

// String returns the scalar value.
func (f FlexString) String() string {
	return string(f)
}

// FacultyRow is a `[id?, name?]` row of the faculties list.
type FacultyRow []FlexString

// ID returns the first cell, empty if absent.
func (r FacultyRow) ID() string {
	if len(r) < 1 {
		return ""
	}
	return r[0].String()
}

// Name returns the second cell, empty if absent.
func (r FacultyRow) Name() string {
	if len(r) < 2 {
		return ""
	}
	return r[1].String()
}

// GroupPayload is a raw group record.
type GroupPayload struct {
	ID    FlexString `json:"id"`
	Name  FlexString `json:"name"`
	Field FlexString `json:"field"`
}

// NamedPayload is a `{name}` object used for categories and subjects.
type NamedPayload struct {
	Name FlexString `json:"name"`
}

// TeacherPayload is an entry of lesson_data.teacher_list.
type TeacherPayload struct {
	ShortName FlexString `json:"short_name"`
	FullName  FlexString `json:"full_name"`
	Email     FlexString `json:"email"`
}

// StudentPayload is an entry of lesson_data.student_list.
type StudentPayload struct {
	GroupName FlexString `json:"group_name"`
}

// StudyPlacePayload describes the room and its owning building.
type StudyPlacePayload struct {
	Name      FlexString `json:"name"`
	OwnerName FlexString `json:"owner_name"`
}

// LessonDataPayload is the nested lesson description of a schedule item.
type LessonDataPayload struct {
	CourseType    *NamedPayload      `json:"course_type"`
	CourseSubject *NamedPayload      `json:"course_subject"`
	TeacherList   []TeacherPayload   `json:"teacher_list"`
	StudentList   []StudentPayload   `json:"student_list"`
	StudyPlace    *StudyPlacePayload `json:"study_place"`
	OnlineLink    FlexString         `json:"online_link"`
}

// ScheduleItemPayload is one raw schedule row.
type ScheduleItemPayload struct {
	StartTime  FlexString         `json:"start_time"`
	EndTime    FlexString         `json:"end_time"`
	Date       FlexString         `json:"date"`
	LessonData *LessonDataPayload `json:"lesson_data"`
}
