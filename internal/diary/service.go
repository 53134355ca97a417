package diary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"diary/internal/gateway"
)

// Options tune a Service.
type Options struct {
	// Concurrency is the maximum number of in-flight upstream requests.
	// Values of one or less select sequential mode.
	Concurrency int
	// SubjectRetry bounds the schedule query behind the subject fallback.
	SubjectRetry RetryPolicy
	// Location is the zone of upstream local timestamps. Defaults to time.Local.
	Location *time.Location
	// Now overrides the clock, mainly for tests.
	Now    func() time.Time
	Logger *zap.Logger
}

// Service reconciles raw diary records of one student into query-ready
// views. All caches live on the instance; nothing is process-global.
type Service struct {
	api Gateway
	log *zap.Logger
	loc *time.Location
	now func() time.Time

	concurrency  int
	gate         *semaphore.Weighted
	subjectRetry RetryPolicy

	personID string
	schoolID string
	groupID  string

	refs *RefCache

	scheduleMu sync.RWMutex
	schedule   map[string][]Lesson
	dayFlight  singleflight.Group

	lessonMu sync.RWMutex
	lessons  map[string]gateway.LessonInfo
}

// New resolves the session identity from the upstream context and loads
// the reference tables. A context without person, school or group id is
// fatal and yields ErrMissingIdentity.
func New(ctx context.Context, api Gateway, opts Options) (*Service, error) {
	s := newService(api, opts)

	uc, err := api.Context(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user context: %w", err)
	}
	s.personID, s.schoolID, s.groupID = uc.Identity()
	if s.personID == "" || s.schoolID == "" || s.groupID == "" {
		return nil, ErrMissingIdentity
	}
	s.log = s.log.With(zap.String("person_id", s.personID))
	s.log.Info("diary session initialized",
		zap.String("school_id", s.schoolID),
		zap.String("group_id", s.groupID))

	s.LoadReferences(ctx)
	return s, nil
}

func newService(api Gateway, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		api:          api,
		log:          log,
		loc:          loc,
		now:          now,
		subjectRetry: opts.SubjectRetry,
		refs:         NewRefCache(),
		schedule:     make(map[string][]Lesson),
		lessons:      make(map[string]gateway.LessonInfo),
	}
	if opts.Concurrency > 1 {
		s.concurrency = opts.Concurrency
		s.gate = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return s
}

// References exposes the reference tables.
func (s *Service) References() *RefCache { return s.refs }

// Identity returns the person, school and group ids of the session.
func (s *Service) Identity() (personID, schoolID, groupID string) {
	return s.personID, s.schoolID, s.groupID
}

// ClearScheduleCache drops every cached day so the next request refetches.
func (s *Service) ClearScheduleCache() {
	s.scheduleMu.Lock()
	s.schedule = make(map[string][]Lesson)
	s.scheduleMu.Unlock()
	s.log.Info("schedule cache cleared")
}

// startOfDay truncates t to local midnight in the service zone.
func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// endOfDay returns 23:59:59 of t's day.
func (s *Service) endOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, s.loc)
}
