package diary

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary/internal/gateway"
)

// LoadReferences populates subjects, students, teachers and work types.
// Loader failures degrade to empty or fallback tables and never return.
func (s *Service) LoadReferences(ctx context.Context) {
	loaders := []func(context.Context){
		s.loadSubjects,
		s.loadStudents,
		s.loadTeachers,
		s.loadWorkTypes,
	}
	s.forEach(ctx, len(loaders), func(ctx context.Context, i int) {
		loaders[i](ctx)
	})
}

func (s *Service) loadSubjects(ctx context.Context) {
	s.refs.Subjects.Reset()
	subjects, err := call(ctx, s, func(ctx context.Context) ([]gateway.Subject, error) {
		return s.api.GroupSubjects(ctx, s.groupID)
	})
	if err == nil {
		for _, subj := range subjects {
			s.putSubject(subj)
		}
		s.log.Info("subjects loaded", zap.Int("count", s.refs.Subjects.Len()))
		return
	}
	s.log.Warn("group subjects unavailable, scanning academic year schedule", zap.Error(err))

	now := s.now().In(s.loc)
	start := time.Date(now.Year(), time.September, 1, 0, 0, 0, 0, s.loc)
	if start.After(now) {
		start = start.AddDate(-1, 0, 0)
	}
	end := time.Date(start.Year()+1, time.August, 31, 23, 59, 59, 0, s.loc)

	sched, err := retry(ctx, s.subjectRetry, s.log, "subject year scan", func(ctx context.Context) (gateway.Schedule, error) {
		return call(ctx, s, func(ctx context.Context) (gateway.Schedule, error) {
			return s.api.Schedule(ctx, s.personID, s.groupID, start, end)
		})
	})
	if err == nil {
		s.mergeScheduleSubjects(sched)
	}
	s.log.Info("subjects loaded from year schedule", zap.Int("count", s.refs.Subjects.Len()))
	if s.refs.Subjects.Len() > 0 {
		return
	}

	s.log.Warn("no subjects in year schedule, scanning last 30 days")
	sched, err = call(ctx, s, func(ctx context.Context) (gateway.Schedule, error) {
		return s.api.Schedule(ctx, s.personID, s.groupID, now.AddDate(0, 0, -30), now)
	})
	if err != nil {
		s.log.Warn("subject schedule scan failed", zap.Error(err))
		return
	}
	s.mergeScheduleSubjects(sched)
	s.log.Info("subjects loaded from 30 day schedule", zap.Int("count", s.refs.Subjects.Len()))
}

func (s *Service) putSubject(subj gateway.Subject) {
	name := strings.TrimSpace(subj.Name)
	if subj.ID.Empty() || name == "" {
		return
	}
	s.refs.Subjects.Set(subj.ID.String(), name)
}

func (s *Service) mergeScheduleSubjects(sched gateway.Schedule) {
	for _, day := range sched.Days {
		for _, subj := range day.Subjects {
			name := strings.TrimSpace(subj.Name)
			if subj.ID.Empty() || name == "" {
				continue
			}
			s.refs.Subjects.Merge(subj.ID.String(), name)
		}
	}
}

func (s *Service) loadStudents(ctx context.Context) {
	s.refs.Students.Reset()
	students, err := call(ctx, s, func(ctx context.Context) ([]gateway.Student, error) {
		return s.api.GroupPupils(ctx, s.groupID)
	})
	if err != nil {
		s.log.Warn("students unavailable", zap.Error(err))
		return
	}
	for _, st := range students {
		if st.ID.Empty() {
			continue
		}
		name := st.ShortName
		if name == "" {
			name = UnknownStudent
		}
		s.refs.Students.Set(st.ID.String(), name)
	}
	s.log.Info("students loaded", zap.Int("count", s.refs.Students.Len()))
}

func (s *Service) loadTeachers(ctx context.Context) {
	s.refs.Teachers.Reset()
	teachers, err := call(ctx, s, func(ctx context.Context) ([]gateway.Teacher, error) {
		return s.api.SchoolTeachers(ctx, s.schoolID)
	})
	if err != nil {
		s.log.Warn("teachers unavailable", zap.Error(err))
		return
	}
	for _, t := range teachers {
		if t.ID.Empty() {
			continue
		}
		info := TeacherInfo{
			ShortName: orDefault(t.ShortName, Unknown),
			FullName:  t.FullName(),
			Subjects:  orDefault(t.Subjects.String(), Unknown),
			Email:     t.Email,
			Position:  orDefault(t.Position, Unknown),
		}
		s.refs.Teachers.Set(t.ID.String(), info)
	}
	s.log.Info("teachers loaded", zap.Int("count", s.refs.Teachers.Len()))
}

func (s *Service) loadWorkTypes(ctx context.Context) {
	s.refs.WorkTypes.Reset()
	types, err := call(ctx, s, func(ctx context.Context) ([]gateway.WorkType, error) {
		return s.api.WorkTypes(ctx, s.schoolID)
	})
	if err != nil {
		s.log.Warn("work types unavailable, using built-in table", zap.Error(err))
		for _, wt := range fallbackWorkTypes {
			s.refs.WorkTypes.Set(wt.code, wt.name)
		}
		return
	}
	for _, wt := range types {
		name := strings.TrimSpace(wt.Title)
		if wt.ID.Empty() || name == "" {
			continue
		}
		s.refs.WorkTypes.Set(wt.ID.String(), name)
	}
	s.log.Info("work types loaded", zap.Int("count", s.refs.WorkTypes.Len()))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
