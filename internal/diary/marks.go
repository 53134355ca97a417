package diary

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"diary/internal/gateway"
	"diary/internal/metrics"
)

// DisplayDateLayout formats dates shown to people.
const DisplayDateLayout = "02.01.2006"

// lastMarksWindow is how far back LastMarks looks.
const lastMarksWindow = 90 * 24 * time.Hour

// RecentMark is a recent mark enriched with lesson context and the class
// distribution for the same work.
type RecentMark struct {
	Subject      string         `json:"subject"`
	WorkType     string         `json:"work_type"`
	LessonTitle  string         `json:"lesson_title"`
	Mark         string         `json:"mark"`
	Distribution map[string]int `json:"class_distribution"`
	Date         string         `json:"date"`
}

// LedgerEntry is one mark of the per-subject ledger.
type LedgerEntry struct {
	LessonDate  string `json:"lesson_date"`
	MarkDate    string `json:"mark_date"`
	Value       string `json:"value"`
	WorkType    string `json:"work_type"`
	Mood        string `json:"mood"`
	LessonTitle string `json:"lesson_title"`

	markTime time.Time
}

// WorkMark is one student's mark for a work.
type WorkMark struct {
	Name string `json:"name"`
	Mark string `json:"mark"`
}

// TeacherView is a teacher of the group with reference details.
type TeacherView struct {
	ID string `json:"id"`
	TeacherInfo
}

// UpcomingTest is a weighted work scheduled in the next two weeks.
type UpcomingTest struct {
	Date        string `json:"date"`
	Subject     string `json:"subject"`
	WorkType    string `json:"work_type"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// LessonDetail returns the lesson detail view, cached per lesson id.
// Invalid ids and failed lookups yield an empty detail; failures are cached
// unless the caller's context ended.
func (s *Service) LessonDetail(ctx context.Context, lessonID string, forceRefresh bool) gateway.LessonInfo {
	if gateway.Scalar(lessonID).Empty() {
		s.log.Debug("invalid lesson id", zap.String("lesson_id", lessonID))
		return gateway.LessonInfo{}
	}
	if !forceRefresh {
		s.lessonMu.RLock()
		info, ok := s.lessons[lessonID]
		s.lessonMu.RUnlock()
		if ok {
			metrics.CacheHit("lesson")
			return info
		}
	}
	metrics.CacheMiss("lesson")

	info, err := call(ctx, s, func(ctx context.Context) (gateway.LessonInfo, error) {
		return s.api.LessonInfo(ctx, lessonID)
	})
	if err != nil {
		if aborted(ctx, err) {
			return gateway.LessonInfo{}
		}
		s.log.Warn("lesson detail unavailable", zap.String("lesson_id", lessonID), zap.Error(err))
		info = gateway.LessonInfo{}
	}
	s.lessonMu.Lock()
	s.lessons[lessonID] = info
	s.lessonMu.Unlock()
	return info
}

// LastMarks returns the count most recent marks of the student, newest
// first, optionally restricted to one subject. An unknown subject filter is
// ignored. count must be positive.
func (s *Service) LastMarks(ctx context.Context, count int, subjectID string) ([]RecentMark, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}
	if subjectID != "" && !s.refs.Subjects.Has(subjectID) {
		s.log.Warn("subject filter not in reference cache, ignoring", zap.String("subject_id", subjectID))
		subjectID = ""
	}
	end := s.now()
	start := end.Add(-lastMarksWindow)
	marks, err := call(ctx, s, func(ctx context.Context) ([]gateway.Mark, error) {
		return s.api.PersonMarks(ctx, s.personID, s.schoolID, start, end)
	})
	if err != nil {
		s.log.Warn("person marks unavailable", zap.Error(err))
		return []RecentMark{}, nil
	}

	dates := make([]time.Time, len(marks))
	for i, m := range marks {
		dates[i] = s.markTime(m.Date)
	}
	order := make([]int, len(marks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dates[order[a]].After(dates[order[b]]) })
	if len(order) > count {
		order = order[:count]
	}

	results := make([]*RecentMark, len(order))
	s.forEach(ctx, len(order), func(ctx context.Context, i int) {
		m := marks[order[i]]
		results[i] = s.recentMark(ctx, m, dates[order[i]], subjectID)
	})

	out := make([]RecentMark, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Service) recentMark(ctx context.Context, m gateway.Mark, date time.Time, subjectFilter string) *RecentMark {
	lessonID, workID := m.LessonID(), m.WorkID()
	detail := s.LessonDetail(ctx, lessonID, false)

	var subjectID string
	if detail.Subject != nil {
		subjectID = detail.Subject.ID.String()
	}
	if subjectFilter != "" && subjectID != "" && subjectID != subjectFilter {
		return nil
	}

	rm := &RecentMark{
		Subject:      UnknownSubject,
		WorkType:     UnknownWorkType,
		LessonTitle:  UnknownTopic,
		Mark:         orDefault(m.Value.String(), NoMark),
		Distribution: map[string]int{},
		Date:         date.Format(DisplayDateLayout),
	}
	if subjectID != "" {
		rm.Subject = s.refs.SubjectName(subjectID)
		rm.LessonTitle = orDefault(detail.Title, UnknownTopic)
		for _, w := range detail.Works {
			if w.ID.String() == workID {
				rm.WorkType = s.refs.WorkTypeName(w.WorkType.String())
				break
			}
		}
	}
	if workID != "" {
		hist, err := call(ctx, s, func(ctx context.Context) (gateway.Histogram, error) {
			return s.api.MarksHistogram(ctx, workID)
		})
		if err != nil {
			s.log.Warn("work histogram unavailable", zap.String("work_id", workID), zap.Error(err))
		} else {
			addHistogram(rm.Distribution, hist)
		}
	}
	return rm
}

// markTime parses a mark timestamp; unparsable values sort as "now".
func (s *Service) markTime(v string) time.Time {
	if t, ok := parseTimestamp(v, s.loc); ok {
		return t
	}
	s.log.Debug("bad mark date", zap.String("date", v))
	return s.now()
}

// Marks builds the per-subject ledger of the student's marks for lessons
// in [start, end], each subject's entries ordered by mark date.
func (s *Service) Marks(ctx context.Context, start, end time.Time) (map[string][]LedgerEntry, error) {
	start, end = s.startOfDay(start), s.startOfDay(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	out := map[string][]LedgerEntry{}
	sched, err := call(ctx, s, func(ctx context.Context) (gateway.Schedule, error) {
		return s.api.Schedule(ctx, s.personID, s.groupID, start, s.endOfDay(end))
	})
	if err != nil {
		s.log.Warn("schedule query failed", zap.Error(err))
		return out, nil
	}

	type lessonRef struct {
		lesson gateway.Lesson
		day    string
	}
	workTypes := make(map[string]string)
	lessons := make(map[string]lessonRef)
	allowed := make(map[string]struct{})
	var marks []gateway.Mark
	for _, day := range sched.Days {
		d, ok := parseTimestamp(day.Date, s.loc)
		if !ok {
			continue
		}
		if d = s.startOfDay(d); d.Before(start) || d.After(end) {
			continue
		}
		for _, wt := range day.WorkTypes {
			workTypes[wt.ID.String()] = wt.Name
		}
		for _, l := range day.Lessons {
			lessons[l.LessonID()] = lessonRef{lesson: l, day: day.Date}
			subjectID := l.SubjectID.String()
			allowed[subjectID] = struct{}{}
			name := UnknownSubject
			if l.SubjectName != nil && *l.SubjectName != "" {
				name = *l.SubjectName
			}
			s.refs.Subjects.Merge(subjectID, name)
		}
		for _, m := range day.Marks {
			if m.PersonID() == s.personID {
				marks = append(marks, m)
			}
		}
	}

	for _, m := range marks {
		ref, ok := lessons[m.LessonID()]
		subjectID := ref.lesson.SubjectID.String()
		if _, allowedSubject := allowed[subjectID]; !ok || ref.lesson.SubjectID.Empty() || !allowedSubject {
			s.log.Debug("mark without known lesson skipped", zap.String("lesson_id", m.LessonID()))
			continue
		}
		lessonDate := ref.lesson.Date
		if lessonDate == "" {
			lessonDate = ref.day
		}
		ld, ok := parseTimestamp(lessonDate, s.loc)
		if !ok {
			s.log.Debug("bad lesson date", zap.String("lesson_id", m.LessonID()), zap.String("date", lessonDate))
			continue
		}
		if sd := s.startOfDay(ld); sd.Before(start) || sd.After(end) {
			continue
		}
		md := s.markTime(m.Date)
		wt, ok := workTypes[m.WorkType.String()]
		if !ok {
			wt = Unknown
		}
		mood := NoMood
		if m.Mood != nil {
			mood = *m.Mood
		}
		title := Unknown
		if ref.lesson.Title != nil {
			title = *ref.lesson.Title
		}
		subject := s.refs.SubjectName(subjectID)
		out[subject] = append(out[subject], LedgerEntry{
			LessonDate:  ld.Format(DisplayDateLayout),
			MarkDate:    md.Format(DisplayDateLayout),
			Value:       orDefault(m.Value.String(), NoMark),
			WorkType:    wt,
			Mood:        mood,
			LessonTitle: title,
			markTime:    md,
		})
	}
	for subject := range out {
		entries := out[subject]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].markTime.Before(entries[j].markTime) })
	}
	return out, nil
}

// WorkMarks lists every cached student's marks for one work.
func (s *Service) WorkMarks(ctx context.Context, workID string) []WorkMark {
	students := s.refs.Students.Entries()
	if len(students) == 0 {
		s.log.Info("student cache empty, no work marks")
		return []WorkMark{}
	}
	per := make([][]WorkMark, len(students))
	s.forEach(ctx, len(students), func(ctx context.Context, i int) {
		st := students[i]
		marks, err := call(ctx, s, func(ctx context.Context) ([]gateway.Mark, error) {
			return s.api.PersonWorkMarks(ctx, st.ID, workID)
		})
		if err != nil {
			s.log.Warn("work marks unavailable", zap.String("student_id", st.ID), zap.Error(err))
			return
		}
		for _, m := range marks {
			if v := m.Value.String(); v != "" {
				per[i] = append(per[i], WorkMark{Name: st.Value, Mark: v})
			}
		}
	})
	out := []WorkMark{}
	for _, p := range per {
		out = append(out, p...)
	}
	return out
}

// GroupTeachers lists the teachers of lessons in the homework feed for
// [start, end]; zero bounds default to a week back and a month ahead.
func (s *Service) GroupTeachers(ctx context.Context, start, end time.Time) ([]TeacherView, error) {
	now := s.now()
	if start.IsZero() {
		start = now.AddDate(0, 0, -7)
	}
	if end.IsZero() {
		end = now.AddDate(0, 0, 30)
	}
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	feed, err := call(ctx, s, func(ctx context.Context) (gateway.HomeworkFeed, error) {
		return s.api.Homeworks(ctx, s.personID, s.schoolID, start, end)
	})
	if err != nil {
		s.log.Warn("homework feed unavailable", zap.Error(err))
		return []TeacherView{}, nil
	}

	from, to := s.startOfDay(start), s.startOfDay(end)
	ids := make(map[string]struct{})
	for _, l := range feed.Lessons {
		d, ok := parseTimestamp(l.Date, s.loc)
		if !ok {
			continue
		}
		if d = s.startOfDay(d); d.Before(from) || d.After(to) {
			continue
		}
		for _, t := range l.Teachers {
			ids[t.String()] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make([]TeacherView, 0, len(sorted))
	for _, id := range sorted {
		info, ok := s.refs.Teachers.Get(id)
		if !ok {
			info = TeacherInfo{ShortName: Unknown, FullName: Unknown, Subjects: Unknown, Position: Unknown}
		}
		out = append(out, TeacherView{ID: id, TeacherInfo: info})
	}
	return out, nil
}

// UpcomingTests scans the next 14 days for works whose type carries a
// weight of at least minTestWeight.
func (s *Service) UpcomingTests(ctx context.Context) []UpcomingTest {
	start := s.now()
	days, err := s.Schedule(ctx, start, start.AddDate(0, 0, 14))
	if err != nil {
		return []UpcomingTest{}
	}
	tests := []UpcomingTest{}
	for _, day := range days {
		for _, l := range day.Lessons {
			for _, w := range l.Works {
				weight, ok := testWeights[w.Type]
				if !ok || weight < minTestWeight {
					continue
				}
				tests = append(tests, UpcomingTest{
					Date:        day.Date,
					Subject:     l.Subject,
					WorkType:    w.Type,
					Description: w.Type + ": " + l.Title,
					Weight:      weight,
				})
			}
		}
	}
	s.log.Debug("upcoming tests found", zap.Int("count", len(tests)))
	return tests
}
