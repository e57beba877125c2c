package dto

// SelectFacultyRequest selects a faculty by id.
type SelectFacultyRequest struct {
	FacultyID string `json:"faculty_id" validate:"required"`
}

// SelectGroupRequest selects a group of the current faculty.
type SelectGroupRequest struct {
	GroupID string `json:"group_id" validate:"required"`
}

// SelectDateRequest moves the selection to a calendar date (YYYY-MM-DD).
type SelectDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// GroupSearchResponse is the result of a group filter query.
type GroupSearchResponse struct {
	Query  string      `json:"query"`
	Groups interface{} `json:"groups"`
	Total  int         `json:"total"`
}
