package diary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"diary/internal/gateway"
)

var errUpstream = errors.New("upstream unavailable")

// fakeGateway is an in-memory Gateway. Nil function fields fall back to
// empty successful responses.
type fakeGateway struct {
	context        gateway.UserContext
	contextErr     error
	subjects       []gateway.Subject
	subjectsErr    error
	students       []gateway.Student
	studentsErr    error
	teachers       []gateway.Teacher
	teachersErr    error
	workTypes      []gateway.WorkType
	workTypesErr   error
	periods        []gateway.ReportingPeriod
	periodsErr     error
	scheduleFn     func(start, end time.Time) (gateway.Schedule, error)
	lessonFn       func(id string) (gateway.LessonInfo, error)
	personMarks    []gateway.Mark
	subjectMarksFn func(personID, subjectID string) ([]gateway.Mark, error)
	workMarksFn    func(personID, workID string) ([]gateway.Mark, error)
	subjectHistFn  func(subjectID string) (gateway.SubjectHistogram, error)
	histFn         func(workID string) (gateway.Histogram, error)
	homeworks      gateway.HomeworkFeed

	scheduleCalls atomic.Int32
	lessonCalls   atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
	mu            sync.Mutex
	scheduleArgs  [][2]time.Time
}

func (f *fakeGateway) enter() func() {
	n := f.inFlight.Add(1)
	for {
		old := f.maxInFlight.Load()
		if n <= old || f.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeGateway) Context(context.Context) (gateway.UserContext, error) {
	return f.context, f.contextErr
}

func (f *fakeGateway) GroupSubjects(context.Context, string) ([]gateway.Subject, error) {
	return f.subjects, f.subjectsErr
}

func (f *fakeGateway) GroupPupils(context.Context, string) ([]gateway.Student, error) {
	return f.students, f.studentsErr
}

func (f *fakeGateway) SchoolTeachers(context.Context, string) ([]gateway.Teacher, error) {
	return f.teachers, f.teachersErr
}

func (f *fakeGateway) WorkTypes(context.Context, string) ([]gateway.WorkType, error) {
	return f.workTypes, f.workTypesErr
}

func (f *fakeGateway) Schedule(_ context.Context, _, _ string, start, end time.Time) (gateway.Schedule, error) {
	defer f.enter()()
	f.scheduleCalls.Add(1)
	f.mu.Lock()
	f.scheduleArgs = append(f.scheduleArgs, [2]time.Time{start, end})
	f.mu.Unlock()
	if f.scheduleFn == nil {
		return gateway.Schedule{}, nil
	}
	return f.scheduleFn(start, end)
}

func (f *fakeGateway) ReportingPeriods(context.Context, string) ([]gateway.ReportingPeriod, error) {
	return f.periods, f.periodsErr
}

func (f *fakeGateway) LessonInfo(_ context.Context, id string) (gateway.LessonInfo, error) {
	f.lessonCalls.Add(1)
	if f.lessonFn == nil {
		return gateway.LessonInfo{}, nil
	}
	return f.lessonFn(id)
}

func (f *fakeGateway) PersonMarks(context.Context, string, string, time.Time, time.Time) ([]gateway.Mark, error) {
	return f.personMarks, nil
}

func (f *fakeGateway) PersonSubjectMarks(_ context.Context, personID, subjectID string, _, _ time.Time) ([]gateway.Mark, error) {
	defer f.enter()()
	if f.subjectMarksFn == nil {
		return nil, nil
	}
	return f.subjectMarksFn(personID, subjectID)
}

func (f *fakeGateway) PersonWorkMarks(_ context.Context, personID, workID string) ([]gateway.Mark, error) {
	if f.workMarksFn == nil {
		return nil, nil
	}
	return f.workMarksFn(personID, workID)
}

func (f *fakeGateway) SubjectMarksHistogram(_ context.Context, _, _, subjectID string) (gateway.SubjectHistogram, error) {
	if f.subjectHistFn == nil {
		return gateway.SubjectHistogram{}, nil
	}
	return f.subjectHistFn(subjectID)
}

func (f *fakeGateway) MarksHistogram(_ context.Context, workID string) (gateway.Histogram, error) {
	if f.histFn == nil {
		return gateway.Histogram{}, nil
	}
	return f.histFn(workID)
}

func (f *fakeGateway) Homeworks(context.Context, string, string, time.Time, time.Time) (gateway.HomeworkFeed, error) {
	return f.homeworks, nil
}

// fixedNow is the clock used by service tests: mid third quarter.
var fixedNow = time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)

// newTestService builds a service for personID "p1" without calling the
// upstream context endpoint.
func newTestService(t *testing.T, f *fakeGateway, concurrency int) *Service {
	t.Helper()
	s := newService(f, Options{
		Concurrency: concurrency,
		Location:    time.UTC,
		Now:         func() time.Time { return fixedNow },
		Logger:      zap.NewNop(),
	})
	s.personID, s.schoolID, s.groupID = "p1", "s1", "g1"
	return s
}

func ptr[T any](v T) *T { return &v }

func personMark(person, work, value string) gateway.Mark {
	return gateway.Mark{PersonStr: gateway.Scalar(person), WorkStr: gateway.Scalar(work), Value: gateway.Scalar(value)}
}

func markValues(values ...string) []gateway.Mark {
	out := make([]gateway.Mark, 0, len(values))
	for _, v := range values {
		out = append(out, gateway.Mark{Value: gateway.Scalar(v)})
	}
	return out
}

func nopLogger() *zap.Logger { return zap.NewNop() }
