package diary

import (
	"context"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"diary/internal/gateway"
)

// RankEntry is one student's standing.
type RankEntry struct {
	Name    string  `json:"name"`
	Average float64 `json:"avg_grade"`
	Count   int     `json:"marks_count"`
}

// FinalMark summarizes one subject over a period.
type FinalMark struct {
	Subject string   `json:"subject"`
	Grades  []string `json:"grades"`
	Average string   `json:"average"`
}

// ClassStats summarizes every numeric mark of the class over a period.
type ClassStats struct {
	TotalMarks   int                `json:"total_marks"`
	Average      float64            `json:"average_class_grade"`
	Distribution map[string]float64 `json:"grade_distribution"`
}

// ClassRanking ranks every cached student by the average of their marks in
// all cached subjects over the quarter.
func (s *Service) ClassRanking(ctx context.Context, quarter int, year *int, opts ...AggregateOption) ([]RankEntry, error) {
	p, ok, err := s.ResolvePeriod(ctx, quarter, year)
	if err != nil || !ok {
		return []RankEntry{}, err
	}
	return s.RankStudents(ctx, p, "", opts...), nil
}

// SubjectRanking ranks students by their average in one subject.
func (s *Service) SubjectRanking(ctx context.Context, quarter int, subjectID string, year *int, opts ...AggregateOption) ([]RankEntry, error) {
	p, ok, err := s.ResolvePeriod(ctx, quarter, year)
	if err != nil || !ok {
		return []RankEntry{}, err
	}
	if !s.refs.Subjects.Has(subjectID) {
		s.log.Warn("subject not in reference cache", zap.String("subject_id", subjectID))
		return []RankEntry{}, nil
	}
	if s.refs.Students.Len() == 0 {
		s.log.Info("student cache empty, reloading")
		s.loadStudents(ctx)
	}
	return s.RankStudents(ctx, p, subjectID, opts...), nil
}

// RankStudents averages each student's marks over the period, in one
// subject when subjectID is set or across all cached subjects otherwise,
// and sorts by average descending. Ties keep student cache order.
func (s *Service) RankStudents(ctx context.Context, p Period, subjectID string, opts ...AggregateOption) []RankEntry {
	cfg := aggregateOptions(opts)
	students := s.refs.Students.Entries()
	subjects := []string{subjectID}
	if subjectID == "" {
		subjects = s.refs.Subjects.Keys()
	}

	results := make([]*RankEntry, len(students))
	s.forEach(ctx, len(students), func(ctx context.Context, i int) {
		st := students[i]
		var grades []float64
		failed := 0
		for _, subj := range subjects {
			marks, err := call(ctx, s, func(ctx context.Context) ([]gateway.Mark, error) {
				return s.api.PersonSubjectMarks(ctx, st.ID, subj, p.Start, p.Finish)
			})
			if err != nil {
				failed++
				s.log.Warn("student marks unavailable",
					zap.String("student_id", st.ID), zap.String("subject_id", subj), zap.Error(err))
				continue
			}
			for _, m := range marks {
				if g, ok := parseGrade(m.Value.String(), cfg.mode); ok {
					grades = append(grades, g)
				}
			}
		}
		// A single-subject ranking omits students whose query failed.
		if subjectID != "" && failed > 0 {
			return
		}
		results[i] = &RankEntry{Name: st.Value, Average: round(mean(grades), 2), Count: len(grades)}
	})

	ranking := make([]RankEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranking = append(ranking, *r)
		}
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Average > ranking[j].Average })
	return ranking
}

// SubjectStats returns the class histogram of a subject over the quarter.
func (s *Service) SubjectStats(ctx context.Context, quarter int, subjectID string, year *int) (map[string]int, error) {
	p, ok, err := s.ResolvePeriod(ctx, quarter, year)
	if err != nil || !ok {
		return map[string]int{}, err
	}
	return s.SubjectHistogram(ctx, p, subjectID), nil
}

// SubjectHistogram sums mark counts per literal value across every work of
// the subject in the period. Failures yield an empty map.
func (s *Service) SubjectHistogram(ctx context.Context, p Period, subjectID string) map[string]int {
	hist, err := call(ctx, s, func(ctx context.Context) (gateway.SubjectHistogram, error) {
		return s.api.SubjectMarksHistogram(ctx, s.groupID, p.ID, subjectID)
	})
	if err != nil {
		s.log.Warn("subject histogram unavailable", zap.String("subject_id", subjectID), zap.Error(err))
		return map[string]int{}
	}
	out := make(map[string]int)
	for _, w := range hist.Works {
		addHistogram(out, w)
	}
	return out
}

func addHistogram(dst map[string]int, h gateway.Histogram) {
	for _, mn := range h.MarkNumbers {
		for _, m := range mn.Marks {
			dst[m.Value.String()] += m.Count
		}
	}
}

// ClassStats aggregates the histograms of every cached subject.
func (s *Service) ClassStats(ctx context.Context, quarter int, year *int) (ClassStats, error) {
	empty := ClassStats{Distribution: map[string]float64{}}
	p, ok, err := s.ResolvePeriod(ctx, quarter, year)
	if err != nil || !ok {
		return empty, err
	}
	subjects := s.refs.Subjects.Keys()
	hists := make([]map[string]int, len(subjects))
	s.forEach(ctx, len(subjects), func(ctx context.Context, i int) {
		hists[i] = s.SubjectHistogram(ctx, p, subjects[i])
	})

	counts := make(map[string]int)
	total := 0
	var weighted float64
	for _, h := range hists {
		for value, n := range h {
			if !isNumericGrade(value) {
				continue
			}
			g, _ := strconv.ParseFloat(value, 64)
			counts[value] += n
			total += n
			weighted += g * float64(n)
		}
	}
	if total == 0 {
		return empty, nil
	}
	stats := ClassStats{
		TotalMarks:   total,
		Average:      round(weighted/float64(total), 2),
		Distribution: make(map[string]float64, len(counts)),
	}
	for value, n := range counts {
		stats.Distribution[value] = float64(n) / float64(total) * 100
	}
	return stats, nil
}

// FinalMarks lists the student's grades and average per subject for the
// quarter, sorted by subject name.
func (s *Service) FinalMarks(ctx context.Context, quarter int, year *int, opts ...AggregateOption) ([]FinalMark, error) {
	p, ok, err := s.ResolvePeriod(ctx, quarter, year)
	if err != nil || !ok {
		return []FinalMark{}, err
	}
	return s.FinalMarksByPeriod(ctx, p, opts...), nil
}

// FinalMarksByPeriod covers the subjects taught in the period, or every
// cached subject when the period schedule is empty.
func (s *Service) FinalMarksByPeriod(ctx context.Context, p Period, opts ...AggregateOption) []FinalMark {
	cfg := aggregateOptions(opts)
	subjects := s.activeSubjects(ctx, p)

	results := make([]*FinalMark, len(subjects))
	s.forEach(ctx, len(subjects), func(ctx context.Context, i int) {
		id := subjects[i]
		name, ok := s.refs.Subjects.Get(id)
		if !ok {
			s.log.Debug("subject not in reference cache", zap.String("subject_id", id))
			return
		}
		marks, err := call(ctx, s, func(ctx context.Context) ([]gateway.Mark, error) {
			return s.api.PersonSubjectMarks(ctx, s.personID, id, p.Start, p.Finish)
		})
		if err != nil {
			s.log.Warn("subject marks unavailable, omitting subject", zap.String("subject_id", id), zap.Error(err))
			return
		}
		grades := []string{}
		var values []float64
		for _, m := range marks {
			if g, ok := parseGrade(m.Value.String(), cfg.mode); ok {
				grades = append(grades, m.Value.String())
				values = append(values, g)
			}
		}
		avg := NoGrades
		if len(values) > 0 {
			avg = strconv.FormatFloat(round(mean(values), 1), 'f', 1, 64)
		}
		results[i] = &FinalMark{Subject: name, Grades: grades, Average: avg}
	})

	out := make([]FinalMark, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// activeSubjects returns subject ids with lessons in the period, merging
// day subjects into the reference cache along the way.
func (s *Service) activeSubjects(ctx context.Context, p Period) []string {
	sched, err := call(ctx, s, func(ctx context.Context) (gateway.Schedule, error) {
		return s.api.Schedule(ctx, s.personID, s.groupID, s.startOfDay(p.Start), s.endOfDay(p.Finish))
	})
	if err != nil {
		s.log.Warn("period schedule unavailable", zap.Error(err))
	}
	from, to := s.startOfDay(p.Start), s.startOfDay(p.Finish)
	var ids []string
	seen := make(map[string]struct{})
	for _, day := range sched.Days {
		d, ok := parseTimestamp(day.Date, s.loc)
		if !ok {
			continue
		}
		if d = s.startOfDay(d); d.Before(from) || d.After(to) {
			continue
		}
		s.mergeScheduleSubjects(gateway.Schedule{Days: []gateway.ScheduleDay{day}})
		for _, l := range day.Lessons {
			id := l.SubjectID.String()
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		s.log.Info("period schedule empty, using every cached subject")
		ids = s.refs.Subjects.Keys()
	}
	return ids
}
