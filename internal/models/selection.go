package models

import "time"

// SelectionPhase is the derived state of the selection state machine.
type SelectionPhase string

// Selection phases, ordered from start to a loaded schedule.
const (
	PhaseNoFaculty        SelectionPhase = "no_faculty"
	PhaseFacultiesLoading SelectionPhase = "faculties_loading"
	PhaseFacultySelected  SelectionPhase = "faculty_selected"
	PhaseGroupsLoading    SelectionPhase = "groups_loading"
	PhaseGroupSelected    SelectionPhase = "group_selected"
	PhaseScheduleLoading  SelectionPhase = "schedule_loading"
	PhaseScheduleReady    SelectionPhase = "schedule_ready"
	PhaseScheduleEmpty    SelectionPhase = "schedule_empty"
)

// Persisted selection keys.
const (
	SelectionKeyFacultyID = "last_faculty_id"
	SelectionKeyGroupID   = "last_group_id"
	SelectionKeyGroupName = "last_group_name"
)

// LoadingFlags tracks in-flight fetches per resource.
type LoadingFlags struct {
	Faculties bool `json:"faculties"`
	Groups    bool `json:"groups"`
	Schedule  bool `json:"schedule"`
}

// SelectionSnapshot is the published, read-only view of the selection state.
type SelectionSnapshot struct {
	Phase            SelectionPhase `json:"phase"`
	Faculties        []Faculty      `json:"faculties"`
	MissingFaculties []string       `json:"missing_faculties,omitempty"`
	Groups           []Group        `json:"groups"`
	SelectedFaculty  *Faculty       `json:"selected_faculty,omitempty"`
	SelectedGroup    *Group         `json:"selected_group,omitempty"`
	LastGroupName    string         `json:"last_group_name,omitempty"`
	SelectedDate     time.Time      `json:"selected_date"`
	WeekStart        time.Time      `json:"week_start"`
	WeekEnd          time.Time      `json:"week_end"`
	Schedule         *Schedule      `json:"schedule,omitempty"`
	Loading          LoadingFlags   `json:"loading"`
	Error            string         `json:"error,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	NetworkBlocked   bool           `json:"network_blocked"`
	Notice           string         `json:"notice,omitempty"`
	Version          uint64         `json:"version"`
}
