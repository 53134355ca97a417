package diary

import (
	"context"
	"errors"
	"time"

	"diary/internal/gateway"
)

// Gateway is the upstream diary API as seen by the reconciliation layer.
// *gateway.Client satisfies it; tests use an in-memory fake.
type Gateway interface {
	Context(ctx context.Context) (gateway.UserContext, error)
	GroupSubjects(ctx context.Context, groupID string) ([]gateway.Subject, error)
	GroupPupils(ctx context.Context, groupID string) ([]gateway.Student, error)
	SchoolTeachers(ctx context.Context, schoolID string) ([]gateway.Teacher, error)
	WorkTypes(ctx context.Context, schoolID string) ([]gateway.WorkType, error)
	Schedule(ctx context.Context, personID, groupID string, start, end time.Time) (gateway.Schedule, error)
	ReportingPeriods(ctx context.Context, groupID string) ([]gateway.ReportingPeriod, error)
	LessonInfo(ctx context.Context, lessonID string) (gateway.LessonInfo, error)
	PersonMarks(ctx context.Context, personID, schoolID string, start, end time.Time) ([]gateway.Mark, error)
	PersonSubjectMarks(ctx context.Context, personID, subjectID string, start, end time.Time) ([]gateway.Mark, error)
	PersonWorkMarks(ctx context.Context, personID, workID string) ([]gateway.Mark, error)
	SubjectMarksHistogram(ctx context.Context, groupID, periodID, subjectID string) (gateway.SubjectHistogram, error)
	MarksHistogram(ctx context.Context, workID string) (gateway.Histogram, error)
	Homeworks(ctx context.Context, personID, schoolID string, start, end time.Time) (gateway.HomeworkFeed, error)
}

var _ Gateway = (*gateway.Client)(nil)

// call runs one upstream request, holding a slot of the concurrency gate
// when the service runs in concurrent mode.
func call[T any](ctx context.Context, s *Service, fn func(context.Context) (T, error)) (T, error) {
	if s.gate != nil {
		if err := s.gate.Acquire(ctx, 1); err != nil {
			var zero T
			return zero, err
		}
		defer s.gate.Release(1)
	}
	return fn(ctx)
}

// aborted reports whether err stems from the caller giving up rather than
// from the upstream API.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
