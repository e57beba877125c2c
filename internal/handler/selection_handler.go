package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/internal/dto"
	"github.com/noah-isme/schedule-sync/internal/middleware"
	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
	"github.com/noah-isme/schedule-sync/pkg/middleware/requestid"
	"github.com/noah-isme/schedule-sync/pkg/response"
)

type selectionEngine interface {
	Snapshot() models.SelectionSnapshot
	Subscribe() (<-chan models.SelectionSnapshot, func())
	LoadInitial(ctx context.Context) error
	SelectFaculty(ctx context.Context, facultyID string) error
	SelectGroup(ctx context.Context, groupID string) error
	SelectDate(ctx context.Context, date time.Time) error
	NextWeek(ctx context.Context) error
	PreviousWeek(ctx context.Context) error
	CurrentWeek(ctx context.Context) error
	Refresh(ctx context.Context) error
	FilterGroups(query string) []models.Group
}

// SelectionHandler exposes the selection state machine over HTTP.
type SelectionHandler struct {
	engine    selectionEngine
	validator *validator.Validate
	location  *time.Location
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewSelectionHandler constructs a SelectionHandler.
func NewSelectionHandler(engine selectionEngine, validate *validator.Validate, location *time.Location, logger *zap.Logger) *SelectionHandler {
	if validate == nil {
		validate = validator.New()
	}
	if location == nil {
		location = calendar.LoadLocation("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionHandler{engine: engine, validator: validate, location: location, keepAlive: 25 * time.Second, logger: logger}
}

// State godoc
// @Summary Current selection state
// @Tags Selection
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /state [get]
func (h *SelectionHandler) State(c *gin.Context) {
	snap := h.engine.Snapshot()
	middleware.SetMeta(c, "version", snap.Version)
	response.JSON(c, http.StatusOK, snap, middleware.ExtractMeta(c))
}

// Stream godoc
// @Summary Stream selection snapshots (server-sent events)
// @Tags Selection
// @Produce text/event-stream
// @Success 200 {string} string "snapshot events"
// @Router /state/stream [get]
func (h *SelectionHandler) Stream(c *gin.Context) {
	updates, cancel := h.engine.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
	h.logger.Debug("selection stream closed", zap.String("request_id", requestid.Value(c)))
}

// LoadInitial godoc
// @Summary Load faculties and restore the last selection
// @Tags Selection
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /selection/initial [post]
func (h *SelectionHandler) LoadInitial(c *gin.Context) {
	h.command(c, h.engine.LoadInitial)
}

// SelectFaculty godoc
// @Summary Select a faculty
// @Tags Selection
// @Accept json
// @Produce json
// @Param payload body dto.SelectFacultyRequest true "Faculty"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /selection/faculty [post]
func (h *SelectionHandler) SelectFaculty(c *gin.Context) {
	var req dto.SelectFacultyRequest
	if !h.bind(c, &req) {
		return
	}
	h.command(c, func(ctx context.Context) error {
		return h.engine.SelectFaculty(ctx, strings.TrimSpace(req.FacultyID))
	})
}

// SelectGroup godoc
// @Summary Select a group of the current faculty
// @Tags Selection
// @Accept json
// @Produce json
// @Param payload body dto.SelectGroupRequest true "Group"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /selection/group [post]
func (h *SelectionHandler) SelectGroup(c *gin.Context) {
	var req dto.SelectGroupRequest
	if !h.bind(c, &req) {
		return
	}
	h.command(c, func(ctx context.Context) error {
		return h.engine.SelectGroup(ctx, strings.TrimSpace(req.GroupID))
	})
}

// SelectDate godoc
// @Summary Move the selection to a date
// @Tags Selection
// @Accept json
// @Produce json
// @Param payload body dto.SelectDateRequest true "Date"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /selection/date [post]
func (h *SelectionHandler) SelectDate(c *gin.Context) {
	var req dto.SelectDateRequest
	if !h.bind(c, &req) {
		return
	}
	date, err := calendar.ParseServerDate(req.Date, h.location)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	h.command(c, func(ctx context.Context) error {
		return h.engine.SelectDate(ctx, date)
	})
}

// NextWeek godoc
// @Summary Move to the next week
// @Tags Selection
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /selection/week/next [post]
func (h *SelectionHandler) NextWeek(c *gin.Context) {
	h.command(c, h.engine.NextWeek)
}

// PreviousWeek godoc
// @Summary Move to the previous week
// @Tags Selection
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /selection/week/previous [post]
func (h *SelectionHandler) PreviousWeek(c *gin.Context) {
	h.command(c, h.engine.PreviousWeek)
}

// CurrentWeek godoc
// @Summary Move to the current week
// @Tags Selection
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /selection/week/current [post]
func (h *SelectionHandler) CurrentWeek(c *gin.Context) {
	h.command(c, h.engine.CurrentWeek)
}

// Refresh godoc
// @Summary Re-fetch the selected week
// @Tags Selection
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /selection/refresh [post]
func (h *SelectionHandler) Refresh(c *gin.Context) {
	h.command(c, h.engine.Refresh)
}

// Groups godoc
// @Summary Filter groups of the current faculty
// @Tags Selection
// @Produce json
// @Param q query string false "Case and diacritic insensitive search"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *SelectionHandler) Groups(c *gin.Context) {
	query := c.Query("q")
	groups := h.engine.FilterGroups(query)
	response.JSON(c, http.StatusOK, dto.GroupSearchResponse{Query: query, Groups: groups, Total: len(groups)})
}

func (h *SelectionHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.WithDetail(appErrors.ErrValidation, err.Error(), err))
		return false
	}
	return true
}

// command runs fn and answers with the snapshot published right after it.
func (h *SelectionHandler) command(c *gin.Context, fn func(ctx context.Context) error) {
	if err := fn(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, h.engine.Snapshot())
}
