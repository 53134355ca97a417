package diary

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary/internal/gateway"
	"diary/internal/metrics"
)

// DateLayout keys the schedule cache and range results.
const DateLayout = "2006-01-02"

// Lesson is one reconciled lesson of a day.
type Lesson struct {
	ID         string       `json:"lesson_id"`
	Number     int          `json:"lesson_number"`
	Time       string       `json:"time"`
	SubjectID  string       `json:"subject_id"`
	Subject    string       `json:"subject"`
	Title      string       `json:"title"`
	Teacher    string       `json:"teacher"`
	Classroom  string       `json:"classroom"`
	Status     string       `json:"lesson_status"`
	Attendance string       `json:"attendance"`
	Works      []WorkRef    `json:"works"`
	Homework   string       `json:"homework"`
	Files      []string     `json:"files"`
	Important  bool         `json:"is_important"`
	SentDate   string       `json:"sent_date,omitempty"`
	Marks      []MarkDetail `json:"mark_details"`
}

// WorkRef is a work item attached to a lesson.
type WorkRef struct {
	ID   string `json:"id"`
	Type string `json:"work"`
}

// MarkDetail is the current student's mark for one work of a lesson.
type MarkDetail struct {
	Value       string `json:"value"`
	WorkType    string `json:"work_type"`
	Mood        string `json:"mood"`
	LessonTitle string `json:"lesson_title"`
}

// DaySchedule pairs a date with its lessons.
type DaySchedule struct {
	Date    string   `json:"date"`
	Lessons []Lesson `json:"lessons"`
}

// Schedule returns one entry per day of [start, end] in calendar order.
// Days are fetched through the per-day cache; in concurrent mode they are
// fetched in parallel and joined back by position.
func (s *Service) Schedule(ctx context.Context, start, end time.Time) ([]DaySchedule, error) {
	start, end = s.startOfDay(start), s.startOfDay(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	out := make([]DaySchedule, len(dates))
	s.forEach(ctx, len(dates), func(ctx context.Context, i int) {
		out[i] = DaySchedule{Date: dates[i].Format(DateLayout), Lessons: s.Day(ctx, dates[i])}
	})
	return out, nil
}

// Day returns the reconciled lessons of one date ordered by lesson number.
// Query failures are logged and cached as an empty day. A fetch cut short
// by a canceled or expired context is not cached.
func (s *Service) Day(ctx context.Context, date time.Time) []Lesson {
	key := s.startOfDay(date).Format(DateLayout)

	s.scheduleMu.RLock()
	cached, ok := s.schedule[key]
	s.scheduleMu.RUnlock()
	if ok {
		metrics.CacheHit("schedule")
		return cached
	}
	metrics.CacheMiss("schedule")

	var res dayResult
	// A shared flight may be abandoned by the caller that started it; a
	// caller whose own context is still live fetches once more.
	for attempt := 0; attempt < 2; attempt++ {
		v, _, _ := s.dayFlight.Do(key, func() (any, error) {
			r := s.fetchDay(ctx, date, key)
			if r.cacheable {
				s.scheduleMu.Lock()
				s.schedule[key] = r.lessons
				s.scheduleMu.Unlock()
			}
			return r, nil
		})
		res = v.(dayResult)
		if res.cacheable || ctx.Err() != nil {
			break
		}
	}
	return res.lessons
}

type dayResult struct {
	lessons   []Lesson
	cacheable bool
}

func (s *Service) fetchDay(ctx context.Context, date time.Time, key string) dayResult {
	sched, err := call(ctx, s, func(ctx context.Context) (gateway.Schedule, error) {
		return s.api.Schedule(ctx, s.personID, s.groupID, s.startOfDay(date), s.endOfDay(date))
	})
	if err != nil {
		if aborted(ctx, err) {
			s.log.Debug("schedule query aborted", zap.String("date", key), zap.Error(err))
			return dayResult{lessons: []Lesson{}}
		}
		s.log.Warn("schedule query failed", zap.String("date", key), zap.Error(err))
		return dayResult{lessons: []Lesson{}, cacheable: true}
	}
	if len(sched.Days) == 0 {
		s.log.Debug("no schedule data", zap.String("date", key))
		return dayResult{lessons: []Lesson{}, cacheable: true}
	}

	lessons := []Lesson{}
	seen := make(map[string]struct{})
	for _, day := range sched.Days {
		if !strings.HasPrefix(day.Date, key) {
			continue
		}
		lessons = append(lessons, s.reconcileDay(day, seen)...)
	}
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Number < lessons[j].Number })
	s.log.Debug("schedule reconciled", zap.String("date", key), zap.Int("lessons", len(lessons)))
	return dayResult{lessons: lessons, cacheable: true}
}

// dayIndex holds the per-day lookup tables used to join a day's lessons.
type dayIndex struct {
	subjects  map[string]string
	teachers  map[string]string
	homeworks map[string]gateway.Homework
	works     map[string]gateway.Work
	workTypes map[string]string
	logs      map[string]string
	marks     map[string]gateway.Mark
	files     map[string]gateway.File
}

func (s *Service) indexDay(day gateway.ScheduleDay) dayIndex {
	idx := dayIndex{
		subjects:  make(map[string]string, len(day.Subjects)),
		teachers:  make(map[string]string, len(day.Teachers)),
		homeworks: make(map[string]gateway.Homework, len(day.Homeworks)),
		works:     make(map[string]gateway.Work, len(day.Works)),
		workTypes: make(map[string]string, len(day.WorkTypes)),
		logs:      make(map[string]string),
		marks:     make(map[string]gateway.Mark),
		files:     make(map[string]gateway.File, len(day.Files)),
	}
	for _, subj := range day.Subjects {
		idx.subjects[subj.ID.String()] = subj.Name
	}
	for _, t := range day.Teachers {
		idx.teachers[t.Person.ID.String()] = t.Person.ShortName
	}
	for _, hw := range day.Homeworks {
		idx.homeworks[hw.ID.String()] = hw
	}
	for _, w := range day.Works {
		idx.works[w.ID.String()] = w
	}
	for _, wt := range day.WorkTypes {
		idx.workTypes[wt.ID.String()] = wt.Name
	}
	for _, l := range day.LessonLogEntries {
		if l.PersonID() == s.personID {
			idx.logs[l.LessonID()] = l.Status
		}
	}
	for _, m := range day.Marks {
		if m.PersonID() == s.personID {
			idx.marks[m.WorkID()] = m
		}
	}
	for _, f := range day.Files {
		idx.files[f.ID.String()] = f
	}
	return idx
}

// workTypeName resolves through the day table, then the reference cache.
func (s *Service) workTypeName(idx dayIndex, id string) string {
	if name, ok := idx.workTypes[id]; ok {
		return name
	}
	return s.refs.WorkTypeName(id)
}

func (s *Service) reconcileDay(day gateway.ScheduleDay, seen map[string]struct{}) []Lesson {
	idx := s.indexDay(day)

	for _, subj := range day.Subjects {
		id, name := subj.ID.String(), subj.Name
		if s.refs.Subjects.Merge(id, name) {
			s.log.Debug("subject discovered", zap.String("subject_id", id), zap.String("name", name))
		}
	}
	for _, t := range day.Teachers {
		s.refs.Teachers.Merge(t.Person.ID.String(), TeacherInfo{
			ShortName: t.Person.ShortName,
			FullName:  t.Person.FullName,
			Subjects:  Unknown,
			Position:  Unknown,
		})
	}

	var out []Lesson
	for _, raw := range day.Lessons {
		id := raw.LessonID()
		if _, dup := seen[id]; dup {
			s.log.Debug("duplicate lesson skipped", zap.String("lesson_id", id))
			continue
		}
		seen[id] = struct{}{}

		subjectID := raw.SubjectID.String()
		subjectName, ok := idx.subjects[subjectID]
		if !ok {
			s.log.Debug("lesson with unlisted subject skipped",
				zap.String("lesson_id", id), zap.String("subject_id", subjectID))
			continue
		}
		out = append(out, s.buildLesson(raw, id, subjectID, subjectName, idx))
	}
	return out
}

func (s *Service) buildLesson(raw gateway.Lesson, id, subjectID, subjectName string, idx dayIndex) Lesson {
	l := Lesson{
		ID:         id,
		SubjectID:  subjectID,
		Subject:    subjectName,
		Teacher:    teacherNames(raw.Teachers, idx.teachers),
		Classroom:  classroom(raw),
		Title:      subjectName,
		Time:       UnknownTime,
		Status:     Unknown,
		Attendance: Present,
		Works:      []WorkRef{},
		Files:      []string{},
		Marks:      []MarkDetail{},
	}
	if raw.Number != nil {
		l.Number = *raw.Number
	}
	if raw.Title != nil && strings.TrimSpace(*raw.Title) != "" {
		l.Title = *raw.Title
	}
	if raw.Hours != nil {
		l.Time = *raw.Hours
	}
	if raw.Status != nil {
		l.Status = *raw.Status
	}
	if status, ok := idx.logs[id]; ok {
		l.Attendance = status
	}

	for _, w := range raw.Works {
		if work, ok := idx.works[w.String()]; ok {
			l.Works = append(l.Works, WorkRef{ID: w.String(), Type: s.workTypeName(idx, work.WorkType.String())})
		}
	}

	s.assembleHomework(&l, raw.Works, idx)

	for _, w := range raw.Works {
		mark, ok := idx.marks[w.String()]
		if !ok {
			continue
		}
		work := idx.works[w.String()]
		mood := NoMood
		if mark.Mood != nil {
			mood = *mark.Mood
		}
		l.Marks = append(l.Marks, MarkDetail{
			Value:       mark.Value.String(),
			WorkType:    s.workTypeName(idx, work.WorkType.String()),
			Mood:        mood,
			LessonTitle: l.Title,
		})
	}
	return l
}

// placeholderHomework lists texts teachers enter instead of an assignment.
var placeholderHomework = map[string]struct{}{
	"нет":         {},
	"нет задания": {},
	"-":           {},
	".":           {},
}

func (s *Service) assembleHomework(l *Lesson, works []gateway.Scalar, idx dayIndex) {
	var texts []string
	seenFiles := make(map[string]struct{})
	for _, w := range works {
		hw, ok := idx.homeworks[w.String()]
		if !ok || hw.Type != homeworkType {
			continue
		}
		if hw.Text != nil {
			text := strings.TrimSpace(*hw.Text)
			if _, placeholder := placeholderHomework[strings.ToLower(text)]; text != "" && !placeholder {
				texts = append(texts, text)
			}
		}
		for _, fid := range hw.Files {
			f, ok := idx.files[fid.String()]
			if !ok {
				continue
			}
			entry := orDefault(f.Name, "Файл") + " (" + f.DownloadURL + ")"
			if _, dup := seenFiles[entry]; !dup {
				seenFiles[entry] = struct{}{}
				l.Files = append(l.Files, entry)
			}
		}
		l.Important = l.Important || hw.IsImportant
		if hw.SentDate != nil && *hw.SentDate > l.SentDate {
			l.SentDate = *hw.SentDate
		}
	}
	if len(texts) == 0 && len(l.Files) == 0 {
		texts = []string{NoHomework}
	}
	l.Homework = strings.Join(texts, "\n")
}

func teacherNames(ids []gateway.Scalar, names map[string]string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := names[id.String()]
		if !ok {
			name = Unknown
		}
		parts = append(parts, name)
	}
	if len(parts) == 0 {
		return Unknown
	}
	return strings.Join(parts, ", ")
}

func classroom(raw gateway.Lesson) string {
	var building, place string
	if raw.Building != nil {
		building = strings.TrimSpace(*raw.Building)
	}
	if raw.Place != nil {
		place = strings.TrimSpace(*raw.Place)
	}
	room := strings.TrimSpace(building + " " + place)
	if room == "" {
		room = NotSpecified
	}
	if raw.Floor != nil && !raw.Floor.Empty() {
		room += ", этаж " + raw.Floor.String()
	}
	return room
}
