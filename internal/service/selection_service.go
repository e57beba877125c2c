package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
	"github.com/noah-isme/schedule-sync/pkg/jobs"
	"github.com/noah-isme/schedule-sync/pkg/textutil"
)

// SelectionStore persists the last chosen faculty and group.
type SelectionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type timetableProvider interface {
	Faculties(ctx context.Context) (models.FacultyList, error)
	Groups(ctx context.Context, facultyID string) ([]models.Group, error)
	Schedule(ctx context.Context, groupID string, date time.Time) (*models.Schedule, error)
}

// listInvalidator is implemented by providers that cache faculty and group
// lists.
type listInvalidator interface {
	InvalidateLists(ctx context.Context, facultyID string) error
}

type fetchRecorder interface {
	RecordFetchResult(resource, result string)
}

const (
	resourceFaculties = "faculties"
	resourceGroups    = "groups"
	resourceSchedule  = "schedule"

	noticeNoGroups    = "no groups for this faculty"
	noticeNoFaculties = "no faculties available"

	storeTimeout = 3 * time.Second
)

// ErrSelectionStopped is returned by commands issued before Start or after Stop.
var ErrSelectionStopped = appErrors.New("SELECTION_STOPPED", http.StatusServiceUnavailable, "selection engine is not running")

// SelectionConfig tunes the selection engine.
type SelectionConfig struct {
	Location         *time.Location
	DefaultFacultyID string
	FetchWorkers     int
	RefreshInterval  time.Duration
	Logger           *zap.Logger
	Metrics          fetchRecorder
}

type fetchTask struct {
	resource string
	gen      uint64
	ctx      context.Context
	run      func(ctx context.Context) (interface{}, error)
	apply    func(value interface{}, err error)
}

// selectionState is owned by the loop goroutine; nothing else touches it.
type selectionState struct {
	faculties       []models.Faculty
	missing         []string
	facultiesLoaded bool
	groups          []models.Group
	faculty         *models.Faculty
	group           *models.Group
	lastGroupName   string
	date            time.Time
	schedule        *models.Schedule
	loading         models.LoadingFlags
	errMessage      string
	errCode         string
	blocked         bool
	notice          string
	version         uint64

	gens    map[string]uint64
	cancels map[string]context.CancelFunc
}

// SelectionService is the faculty → group → week state machine. Commands are
// executed one at a time on a single goroutine; fetches run on a worker pool
// and results of superseded fetches are dropped.
type SelectionService struct {
	provider timetableProvider
	store    SelectionStore
	metrics  fetchRecorder
	logger   *zap.Logger
	cfg      SelectionConfig
	now      func() time.Time

	queue   *jobs.Queue
	inbox   chan func()
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	start   sync.Once
	stop    sync.Once

	current atomic.Pointer[models.SelectionSnapshot]
	subsMu  sync.Mutex
	subs    map[int]chan models.SelectionSnapshot
	nextSub int

	st selectionState
}

// NewSelectionService constructs a SelectionService. Call Start before issuing commands.
func NewSelectionService(provider timetableProvider, store SelectionStore, cfg SelectionConfig) *SelectionService {
	if cfg.Location == nil {
		cfg.Location = calendar.LoadLocation("")
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &SelectionService{
		provider: provider,
		store:    store,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		cfg:      cfg,
		now:      time.Now,
		inbox:    make(chan func()),
		done:     make(chan struct{}),
		subs:     make(map[int]chan models.SelectionSnapshot),
		st: selectionState{
			gens:    make(map[string]uint64),
			cancels: make(map[string]context.CancelFunc),
		},
	}
	s.queue = jobs.NewQueue("selection-fetch", s.runFetch, jobs.QueueConfig{
		Workers:    cfg.FetchWorkers,
		BufferSize: cfg.FetchWorkers * 4,
		Logger:     cfg.Logger,
	})
	return s
}

// Start launches the worker pool and the state loop, restoring the persisted
// group name for display.
func (s *SelectionService) Start(ctx context.Context) {
	s.start.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.st.date = calendar.DateOnly(s.now(), s.cfg.Location)
		if name, ok := s.storeGet(models.SelectionKeyGroupName); ok {
			s.st.lastGroupName = name
		}
		s.publish()
		s.queue.Start(s.ctx)
		s.running.Store(true)
		go s.loop()
		if s.cfg.RefreshInterval > 0 {
			go s.refreshLoop(s.cfg.RefreshInterval)
		}
		s.logger.Info("selection engine started", zap.Int("fetch_workers", s.cfg.FetchWorkers), zap.Duration("refresh_interval", s.cfg.RefreshInterval))
	})
}

// Stop terminates the loop and workers and closes all subscriptions.
func (s *SelectionService) Stop() {
	s.stop.Do(func() {
		if !s.running.Load() {
			return
		}
		s.running.Store(false)
		s.cancel()
		<-s.done
		s.queue.Stop()
		s.subsMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subsMu.Unlock()
		s.logger.Info("selection engine stopped")
	})
}

// Running reports whether the engine accepts commands.
func (s *SelectionService) Running() bool {
	return s.running.Load()
}

// Snapshot returns the latest published state.
func (s *SelectionService) Snapshot() models.SelectionSnapshot {
	if snap := s.current.Load(); snap != nil {
		return *snap
	}
	return models.SelectionSnapshot{Phase: models.PhaseNoFaculty, Faculties: []models.Faculty{}, Groups: []models.Group{}}
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one. Slow readers only see the latest snapshot. When the
// engine is not running the channel holds the current snapshot and is closed.
func (s *SelectionService) Subscribe() (<-chan models.SelectionSnapshot, func()) {
	ch := make(chan models.SelectionSnapshot, 1)

	s.subsMu.Lock()
	ch <- s.Snapshot()
	if !s.running.Load() {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// LoadInitial fetches the faculty list once and restores the last selection.
func (s *SelectionService) LoadInitial(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.st.facultiesLoaded || s.st.loading.Faculties {
			return nil
		}
		s.fetchFaculties()
		return nil
	})
}

// SelectFaculty makes facultyID current and loads its groups.
func (s *SelectionService) SelectFaculty(ctx context.Context, facultyID string) error {
	return s.do(ctx, func() error {
		faculty, ok := findFaculty(s.st.faculties, facultyID)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "unknown faculty id "+strconv.Quote(facultyID))
		}
		s.storeDelete(models.SelectionKeyGroupID, models.SelectionKeyGroupName)
		s.st.lastGroupName = ""
		s.applyFaculty(faculty)
		return nil
	})
}

// SelectGroup makes groupID current and loads the selected week.
func (s *SelectionService) SelectGroup(ctx context.Context, groupID string) error {
	return s.do(ctx, func() error {
		group, ok := findGroup(s.st.groups, groupID)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "unknown group id "+strconv.Quote(groupID))
		}
		s.applyGroup(group)
		return nil
	})
}

// SelectDate moves the selection to date.
func (s *SelectionService) SelectDate(ctx context.Context, date time.Time) error {
	return s.do(ctx, func() error {
		s.moveTo(calendar.DateOnly(date, s.cfg.Location))
		return nil
	})
}

// NextWeek moves the selection seven days forward.
func (s *SelectionService) NextWeek(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.moveTo(s.st.date.AddDate(0, 0, 7))
		return nil
	})
}

// PreviousWeek moves the selection seven days back.
func (s *SelectionService) PreviousWeek(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.moveTo(s.st.date.AddDate(0, 0, -7))
		return nil
	})
}

// CurrentWeek moves the selection to today in the institution timezone.
func (s *SelectionService) CurrentWeek(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.moveTo(calendar.DateOnly(s.now(), s.cfg.Location))
		return nil
	})
}

// Refresh re-fetches the selected week. Without a group it does nothing.
// Cached lists of the selected faculty are dropped so later list reads are
// fresh as well.
func (s *SelectionService) Refresh(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.st.faculty != nil {
			s.invalidateLists(s.st.faculty.ID)
		}
		if s.st.group != nil {
			s.fetchSchedule()
		}
		return nil
	})
}

// FilterGroups returns the groups whose name or full name contains query,
// ignoring case and diacritics.
func (s *SelectionService) FilterGroups(query string) []models.Group {
	groups := s.Snapshot().Groups
	query = strings.TrimSpace(query)
	if query == "" {
		return append([]models.Group(nil), groups...)
	}
	matched := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if textutil.ContainsFold(g.Name, query) || textutil.ContainsFold(g.FullName, query) {
			matched = append(matched, g)
		}
	}
	return matched
}

func (s *SelectionService) do(ctx context.Context, fn func() error) error {
	if !s.running.Load() {
		return ErrSelectionStopped
	}
	reply := make(chan error, 1)
	cmd := func() {
		err := fn()
		s.publish()
		reply <- err
	}
	select {
	case s.inbox <- cmd:
	case <-s.ctx.Done():
		return ErrSelectionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SelectionService) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.ctx.Done():
	}
}

func (s *SelectionService) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			for _, cancel := range s.st.cancels {
				cancel()
			}
			return
		case fn := <-s.inbox:
			fn()
		}
	}
}

func (s *SelectionService) refreshLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(s.ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSelectionStopped) {
				s.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}

func (s *SelectionService) applyFaculty(faculty models.Faculty) {
	s.supersede(resourceGroups)
	s.supersede(resourceSchedule)
	s.st.faculty = &faculty
	s.st.groups = nil
	s.st.group = nil
	s.st.schedule = nil
	s.st.notice = ""
	s.storeSet(models.SelectionKeyFacultyID, faculty.ID)
	s.fetchGroups(faculty.ID)
}

func (s *SelectionService) applyGroup(group models.Group) {
	s.supersede(resourceSchedule)
	s.st.group = &group
	s.st.schedule = nil
	s.st.lastGroupName = group.Name
	s.storeSet(models.SelectionKeyGroupID, group.ID)
	s.storeSet(models.SelectionKeyGroupName, group.Name)
	s.fetchSchedule()
}

func (s *SelectionService) moveTo(date time.Time) {
	s.st.date = date
	if s.st.group != nil {
		s.fetchSchedule()
	}
}

func (s *SelectionService) fetchFaculties() {
	s.dispatch(resourceFaculties, func(ctx context.Context) (interface{}, error) {
		return s.provider.Faculties(ctx)
	}, func(value interface{}, err error) {
		if err != nil {
			s.st.faculties = nil
			s.st.missing = nil
			s.fail(resourceFaculties, err)
			return
		}
		list := value.(models.FacultyList)
		s.st.faculties = list.Faculties
		s.st.missing = list.MissingID
		s.st.facultiesLoaded = true
		s.restoreFaculty()
	})
}

func (s *SelectionService) fetchGroups(facultyID string) {
	s.dispatch(resourceGroups, func(ctx context.Context) (interface{}, error) {
		return s.provider.Groups(ctx, facultyID)
	}, func(value interface{}, err error) {
		if err != nil {
			s.supersede(resourceSchedule)
			s.st.groups = nil
			s.st.group = nil
			s.st.schedule = nil
			s.fail(resourceGroups, err)
			return
		}
		s.st.groups = value.([]models.Group)
		if len(s.st.groups) == 0 {
			s.st.notice = noticeNoGroups
		}
		s.restoreGroup()
	})
}

func (s *SelectionService) fetchSchedule() {
	groupID := s.st.group.ID
	date := s.st.date
	s.dispatch(resourceSchedule, func(ctx context.Context) (interface{}, error) {
		return s.provider.Schedule(ctx, groupID, date)
	}, func(value interface{}, err error) {
		if err != nil {
			s.st.schedule = nil
			s.fail(resourceSchedule, err)
			return
		}
		s.st.schedule = value.(*models.Schedule)
	})
}

func (s *SelectionService) restoreFaculty() {
	if s.st.faculty != nil {
		return
	}
	if len(s.st.faculties) == 0 {
		s.st.notice = noticeNoFaculties
		return
	}
	candidates := []string{}
	if id, ok := s.storeGet(models.SelectionKeyFacultyID); ok {
		candidates = append(candidates, id)
	}
	if s.cfg.DefaultFacultyID != "" {
		candidates = append(candidates, s.cfg.DefaultFacultyID)
	}
	chosen := s.st.faculties[0]
	for _, id := range candidates {
		if f, ok := findFaculty(s.st.faculties, id); ok {
			chosen = f
			break
		}
	}
	s.logger.Debug("restoring faculty", zap.String("faculty_id", chosen.ID))
	s.applyFaculty(chosen)
}

func (s *SelectionService) restoreGroup() {
	id, ok := s.storeGet(models.SelectionKeyGroupID)
	if !ok {
		return
	}
	group, found := findGroup(s.st.groups, id)
	if !found {
		return
	}
	s.logger.Debug("restoring group", zap.String("group_id", group.ID))
	s.st.group = &group
	s.st.lastGroupName = group.Name
	s.fetchSchedule()
}

func (s *SelectionService) invalidateLists(facultyID string) {
	inv, ok := s.provider.(listInvalidator)
	if !ok {
		return
	}
	ctx := s.ctx
	go func() {
		if err := inv.InvalidateLists(ctx, facultyID); err != nil {
			s.logger.Warn("list cache invalidation failed", zap.String("faculty_id", facultyID), zap.Error(err))
		}
	}()
}

// dispatch starts a fetch for resource, superseding any in-flight one.
func (s *SelectionService) dispatch(resource string, run func(ctx context.Context) (interface{}, error), apply func(value interface{}, err error)) {
	s.supersede(resource)
	ctx, cancel := context.WithCancel(s.ctx)
	s.st.cancels[resource] = cancel
	s.setLoading(resource, true)
	s.clearError()
	s.st.notice = ""

	task := &fetchTask{resource: resource, gen: s.st.gens[resource], ctx: ctx, run: run, apply: apply}
	go func() {
		if err := s.queue.Enqueue(jobs.Job{ID: resource + "-" + strconv.FormatUint(task.gen, 10), Type: resource, Payload: task}); err != nil {
			s.logger.Warn("fetch not scheduled", zap.String("resource", resource), zap.Error(err))
		}
	}()
}

// supersede invalidates the in-flight fetch of resource, if any.
func (s *SelectionService) supersede(resource string) {
	if cancel, ok := s.st.cancels[resource]; ok {
		cancel()
		delete(s.st.cancels, resource)
	}
	s.st.gens[resource]++
	s.setLoading(resource, false)
}

func (s *SelectionService) runFetch(_ context.Context, job jobs.Job) error {
	task, ok := job.Payload.(*fetchTask)
	if !ok {
		return nil
	}
	value, err := task.run(task.ctx)
	s.post(func() {
		s.complete(task, value, err)
		s.publish()
	})
	return nil
}

func (s *SelectionService) complete(task *fetchTask, value interface{}, err error) {
	if s.st.gens[task.resource] != task.gen {
		s.logger.Debug("discarding superseded fetch", zap.String("resource", task.resource), zap.Uint64("generation", task.gen))
		s.record(task.resource, "discarded")
		return
	}
	if cancel, ok := s.st.cancels[task.resource]; ok {
		cancel()
		delete(s.st.cancels, task.resource)
	}
	s.setLoading(task.resource, false)
	if err != nil {
		s.record(task.resource, "error")
	} else {
		s.record(task.resource, "ok")
	}
	task.apply(value, err)
}

func (s *SelectionService) fail(resource string, err error) {
	appErr := appErrors.FromError(err)
	s.st.errMessage = appErr.Message
	s.st.errCode = appErr.Code
	s.st.blocked = errors.Is(err, appErrors.ErrNetworkBlocked)
	s.logger.Warn("selection fetch failed", zap.String("resource", resource), zap.String("code", appErr.Code), zap.Error(err))
}

func (s *SelectionService) clearError() {
	s.st.errMessage = ""
	s.st.errCode = ""
	s.st.blocked = false
}

func (s *SelectionService) setLoading(resource string, loading bool) {
	switch resource {
	case resourceFaculties:
		s.st.loading.Faculties = loading
	case resourceGroups:
		s.st.loading.Groups = loading
	case resourceSchedule:
		s.st.loading.Schedule = loading
	}
}

func (s *SelectionService) record(resource, result string) {
	if s.metrics != nil {
		s.metrics.RecordFetchResult(resource, result)
	}
}

func (s *SelectionService) phase() models.SelectionPhase {
	switch {
	case s.st.loading.Faculties:
		return models.PhaseFacultiesLoading
	case s.st.faculty == nil:
		return models.PhaseNoFaculty
	case s.st.loading.Groups:
		return models.PhaseGroupsLoading
	case s.st.group == nil:
		return models.PhaseFacultySelected
	case s.st.loading.Schedule:
		return models.PhaseScheduleLoading
	case s.st.schedule == nil:
		return models.PhaseGroupSelected
	case s.st.schedule.Empty():
		return models.PhaseScheduleEmpty
	default:
		return models.PhaseScheduleReady
	}
}

func (s *SelectionService) publish() {
	s.st.version++
	start := calendar.StartOfWeek(s.st.date)
	snap := &models.SelectionSnapshot{
		Phase:            s.phase(),
		Faculties:        s.st.faculties,
		MissingFaculties: s.st.missing,
		Groups:           s.st.groups,
		LastGroupName:    s.st.lastGroupName,
		SelectedDate:     s.st.date,
		WeekStart:        start,
		WeekEnd:          start.AddDate(0, 0, 6),
		Schedule:         s.st.schedule,
		Loading:          s.st.loading,
		Error:            s.st.errMessage,
		ErrorCode:        s.st.errCode,
		NetworkBlocked:   s.st.blocked,
		Notice:           s.st.notice,
		Version:          s.st.version,
	}
	if snap.Faculties == nil {
		snap.Faculties = []models.Faculty{}
	}
	if snap.Groups == nil {
		snap.Groups = []models.Group{}
	}
	if s.st.faculty != nil {
		f := *s.st.faculty
		snap.SelectedFaculty = &f
	}
	if s.st.group != nil {
		g := *s.st.group
		snap.SelectedGroup = &g
	}
	s.current.Store(snap)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- *snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- *snap:
			default:
			}
		}
	}
}

func (s *SelectionService) storeGet(key string) (string, bool) {
	if s.store == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("selection store read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, ok && value != ""
}

func (s *SelectionService) storeSet(key, value string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.Warn("selection store write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *SelectionService) storeDelete(keys ...string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, keys...); err != nil {
		s.logger.Warn("selection store delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func findFaculty(list []models.Faculty, id string) (models.Faculty, bool) {
	for _, f := range list {
		if f.ID == id {
			return f, true
		}
	}
	return models.Faculty{}, false
}

func findGroup(list []models.Group, id string) (models.Group, bool) {
	for _, g := range list {
		if g.ID == id {
			return g, true
		}
	}
	return models.Group{}, false
}
