package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"diary/internal/analysis"
	"diary/internal/auth"
	"diary/internal/clients"
	"diary/internal/diary"
	"diary/internal/queue"
)

// Diary is the read surface of the diary service the API exposes.
type Diary interface {
	Schedule(ctx context.Context, start, end time.Time) ([]diary.DaySchedule, error)
	Marks(ctx context.Context, start, end time.Time) (map[string][]diary.LedgerEntry, error)
	LastMarks(ctx context.Context, count int, subjectID string) ([]diary.RecentMark, error)
	FinalMarks(ctx context.Context, quarter int, year *int, opts ...diary.AggregateOption) ([]diary.FinalMark, error)
	ClassRanking(ctx context.Context, quarter int, year *int, opts ...diary.AggregateOption) ([]diary.RankEntry, error)
	SubjectRanking(ctx context.Context, quarter int, subjectID string, year *int, opts ...diary.AggregateOption) ([]diary.RankEntry, error)
	SubjectStats(ctx context.Context, quarter int, subjectID string, year *int) (map[string]int, error)
	ClassStats(ctx context.Context, quarter int, year *int) (diary.ClassStats, error)
	GroupTeachers(ctx context.Context, start, end time.Time) ([]diary.TeacherView, error)
	UpcomingTests(ctx context.Context) []diary.UpcomingTest
	ClearScheduleCache()
}

var _ Diary = (*diary.Service)(nil)

// Clients issues and rotates API tokens.
type Clients interface {
	Register(ctx context.Context, clientID string) (auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

var _ Clients = (*clients.Service)(nil)

// Reports persists analysis runs.
type Reports interface {
	Create(ctx context.Context, clientID string, req analysis.Request) (analysis.Report, error)
	Get(ctx context.Context, clientID, id string) (analysis.Report, error)
}

var _ Reports = (*analysis.Repository)(nil)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	diary   Diary
	clients Clients
	reports Reports
	queue   queue.Queue
	health  map[string]HealthCheck
	loc     *time.Location
	log     *zap.Logger
}

// New builds the handler set. Query dates are calendar days in loc, the
// zone the diary service works in; nil means UTC.
func New(d Diary, c Clients, reports Reports, q queue.Queue, health map[string]HealthCheck, loc *time.Location, log *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{diary: d, clients: c, reports: reports, queue: q, health: health, loc: loc, log: log}
}

// Routes mounts every endpoint; protected ones sit behind authMW.
func (h *Handler) Routes(r gin.IRouter, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/clients/register", h.RegisterClient)
	r.POST("/v1/clients/refresh", h.RefreshClient)

	v1 := r.Group("/v1", authMW)
	v1.GET("/schedule", h.Schedule)
	v1.DELETE("/schedule/cache", h.ClearSchedule)
	v1.GET("/marks", h.Marks)
	v1.GET("/marks/last", h.LastMarks)
	v1.GET("/final-marks", h.FinalMarks)
	v1.GET("/ranking/class", h.ClassRanking)
	v1.GET("/ranking/subject", h.SubjectRanking)
	v1.GET("/stats/subject", h.SubjectStats)
	v1.GET("/stats/class", h.ClassStats)
	v1.GET("/teachers", h.Teachers)
	v1.GET("/tests/upcoming", h.UpcomingTests)
	v1.POST("/analyses", h.CreateAnalysis)
	v1.GET("/analyses/:id", h.GetAnalysis)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Clients ----------

type registerRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

func (h *Handler) RegisterClient(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.clients.Register(c.Request.Context(), req.ClientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokenBody(tokens))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) RefreshClient(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.clients.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.log.Info("refresh rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tokens))
}

func tokenBody(t auth.TokenPair) gin.H {
	return gin.H{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_at":    t.AccessExp.Unix(),
	}
}

// ---------- Schedule & marks ----------

func (h *Handler) Schedule(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}
	days, err := h.diary.Schedule(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (h *Handler) ClearSchedule(c *gin.Context) {
	h.diary.ClearScheduleCache()
	c.Status(http.StatusNoContent)
}

func (h *Handler) Marks(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}
	marks, err := h.diary.Marks(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": marks})
}

func (h *Handler) LastMarks(c *gin.Context) {
	count := 5
	if v := c.Query("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = parsed
	}
	marks, err := h.diary.LastMarks(c.Request.Context(), count, c.Query("subject_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marks": marks})
}

func (h *Handler) Teachers(c *gin.Context) {
	var start, end time.Time
	var ok bool
	if start, ok = h.optionalDate(c, "start"); !ok {
		return
	}
	if end, ok = h.optionalDate(c, "end"); !ok {
		return
	}
	teachers, err := h.diary.GroupTeachers(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (h *Handler) UpcomingTests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tests": h.diary.UpcomingTests(c.Request.Context())})
}

// ---------- Aggregation ----------

func (h *Handler) FinalMarks(c *gin.Context) {
	q, ok := quarterParams(c)
	if !ok {
		return
	}
	marks, err := h.diary.FinalMarks(c.Request.Context(), q.quarter, q.year, q.opts...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": marks})
}

func (h *Handler) ClassRanking(c *gin.Context) {
	q, ok := quarterParams(c)
	if !ok {
		return
	}
	ranking, err := h.diary.ClassRanking(c.Request.Context(), q.quarter, q.year, q.opts...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": ranking})
}

func (h *Handler) SubjectRanking(c *gin.Context) {
	q, ok := quarterParams(c)
	if !ok {
		return
	}
	subjectID, ok := requiredQuery(c, "subject_id")
	if !ok {
		return
	}
	ranking, err := h.diary.SubjectRanking(c.Request.Context(), q.quarter, subjectID, q.year, q.opts...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": ranking})
}

func (h *Handler) SubjectStats(c *gin.Context) {
	q, ok := quarterParams(c)
	if !ok {
		return
	}
	subjectID, ok := requiredQuery(c, "subject_id")
	if !ok {
		return
	}
	stats, err := h.diary.SubjectStats(c.Request.Context(), q.quarter, subjectID, q.year)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": stats})
}

func (h *Handler) ClassStats(c *gin.Context) {
	q, ok := quarterParams(c)
	if !ok {
		return
	}
	stats, err := h.diary.ClassStats(c.Request.Context(), q.quarter, q.year)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ---------- Analyses ----------

type analysisRequest struct {
	Type    string `json:"type" binding:"required"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Quarter int    `json:"quarter"`
	Year    *int   `json:"year"`
}

func (h *Handler) CreateAnalysis(c *gin.Context) {
	var body analysisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := analysis.Request{Kind: analysis.Kind(body.Type), Quarter: body.Quarter, Year: body.Year}
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{body.Start, &req.Start}, {body.End, &req.End}} {
		if f.raw == "" {
			continue
		}
		t, err := time.ParseInLocation(diary.DateLayout, f.raw, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
			return
		}
		*f.dst = t
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	rep, err := h.reports.Create(ctx, auth.ClientID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := analysis.Enqueue(ctx, h.queue, analysis.Job{ID: rep.ID, Request: req}); err != nil {
		h.log.Error("queue publish failed", zap.String("analysis_id", rep.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": rep.ID, "status": rep.Status})
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": analysis.ErrNotFound.Error()})
		return
	}
	rep, err := h.reports.Get(c.Request.Context(), auth.ClientID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Helpers ----------

// fail maps domain errors to status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, diary.ErrInvalidQuarter),
		errors.Is(err, diary.ErrInvalidRange),
		errors.Is(err, diary.ErrInvalidCount),
		errors.Is(err, clients.ErrClientIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// optionalDate reads a YYYY-MM-DD query value as midnight in the service zone.
func (h *Handler) optionalDate(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation(diary.DateLayout, v, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}

// dateRange reads a required start and an optional end that defaults to it.
func (h *Handler) dateRange(c *gin.Context) (start, end time.Time, ok bool) {
	if c.Query("start") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start is required"})
		return start, end, false
	}
	if start, ok = h.optionalDate(c, "start"); !ok {
		return start, end, false
	}
	if end, ok = h.optionalDate(c, "end"); !ok {
		return start, end, false
	}
	if end.IsZero() {
		end = start
	}
	return start, end, true
}

func requiredQuery(c *gin.Context, key string) (string, bool) {
	v := c.Query(key)
	if v == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " is required"})
		return "", false
	}
	return v, true
}

type quarterQuery struct {
	quarter int
	year    *int
	opts    []diary.AggregateOption
}

// quarterParams reads quarter, year and the optional grade mode.
func quarterParams(c *gin.Context) (quarterQuery, bool) {
	var q quarterQuery
	raw, ok := requiredQuery(c, "quarter")
	if !ok {
		return q, false
	}
	var err error
	if q.quarter, err = strconv.Atoi(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quarter must be an integer"})
		return q, false
	}
	if v := c.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be an integer"})
			return q, false
		}
		q.year = &year
	}
	switch c.Query("grades") {
	case "", "numeric":
	case "qualitative":
		q.opts = append(q.opts, diary.WithGradeMode(diary.MapQualitative))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "grades must be numeric or qualitative"})
		return q, false
	}
	return q, true
}
