package diary

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"diary/internal/gateway"
)

func scheduleDay(date string) gateway.ScheduleDay {
	return gateway.ScheduleDay{
		Date: date + "T00:00:00",
		Subjects: []gateway.Subject{
			{ID: "10", Name: "Математика"},
			{ID: "20", Name: "Физика"},
		},
		Teachers: []gateway.DayTeacher{teacher("t1", "Иванова И.И.")},
	}
}

func teacher(id, short string) gateway.DayTeacher {
	var t gateway.DayTeacher
	t.Person.ID = gateway.Scalar(id)
	t.Person.ShortName = short
	return t
}

func lesson(id string, number int, subjectID string, works ...gateway.Scalar) gateway.Lesson {
	return gateway.Lesson{
		ID:        gateway.Scalar(id),
		Number:    ptr(number),
		SubjectID: gateway.Scalar(subjectID),
		Teachers:  []gateway.Scalar{"t1"},
		Works:     works,
		Hours:     ptr("08:30 - 09:15"),
	}
}

func singleDay(day gateway.ScheduleDay) func(time.Time, time.Time) (gateway.Schedule, error) {
	return func(time.Time, time.Time) (gateway.Schedule, error) {
		return gateway.Schedule{Days: []gateway.ScheduleDay{day}}, nil
	}
}

var march4 = time.Date(2025, time.March, 4, 9, 30, 0, 0, time.UTC)

func TestDayEmptyFeedIsCached(t *testing.T) {
	f := &fakeGateway{}
	s := newTestService(t, f, 1)

	first := s.Day(context.Background(), march4)
	second := s.Day(context.Background(), march4)

	assert.Empty(t, first)
	assert.NotNil(t, first)
	assert.Empty(t, second)
	assert.Equal(t, int32(1), f.scheduleCalls.Load())
}

func TestDayQueryFailureIsCachedAsEmpty(t *testing.T) {
	f := &fakeGateway{scheduleFn: func(time.Time, time.Time) (gateway.Schedule, error) {
		return gateway.Schedule{}, errUpstream
	}}
	s := newTestService(t, f, 1)

	assert.Empty(t, s.Day(context.Background(), march4))
	assert.Empty(t, s.Day(context.Background(), march4))
	assert.Equal(t, int32(1), f.scheduleCalls.Load())
}

func TestDayCanceledFetchIsNotCached(t *testing.T) {
	var calls atomic.Int32
	f := &fakeGateway{scheduleFn: func(time.Time, time.Time) (gateway.Schedule, error) {
		if calls.Add(1) == 1 {
			return gateway.Schedule{}, context.Canceled
		}
		day := scheduleDay("2025-03-04")
		day.Lessons = []gateway.Lesson{lesson("1", 1, "10")}
		return gateway.Schedule{Days: []gateway.ScheduleDay{day}}, nil
	}}
	s := newTestService(t, f, 1)

	// the aborted fetch is retried for a live caller and never cached
	first := s.Day(context.Background(), march4)
	second := s.Day(context.Background(), march4)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), f.scheduleCalls.Load())
}

func TestDayFailureAfterCallerLeftIsNotCached(t *testing.T) {
	f := &fakeGateway{scheduleFn: func(time.Time, time.Time) (gateway.Schedule, error) {
		return gateway.Schedule{}, errUpstream
	}}
	s := newTestService(t, f, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, s.Day(ctx, march4))
	assert.Empty(t, s.Day(context.Background(), march4))
	assert.Empty(t, s.Day(context.Background(), march4))
	// only the live caller's failure is cached
	assert.Equal(t, int32(2), f.scheduleCalls.Load())
}

func TestScheduleKeepsCalendarDayWestOfUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	f := &fakeGateway{}
	s := newService(f, Options{Location: est, Now: func() time.Time { return fixedNow }, Logger: zap.NewNop()})
	s.personID, s.schoolID, s.groupID = "p1", "s1", "g1"
	day, err := time.ParseInLocation(DateLayout, "2025-03-04", est)
	require.NoError(t, err)

	got, err := s.Schedule(context.Background(), day, day)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-03-04", got[0].Date)
	require.Len(t, f.scheduleArgs, 1)
	assert.True(t, day.Equal(f.scheduleArgs[0][0]))
}

func TestDayQueriesWholeDay(t *testing.T) {
	f := &fakeGateway{}
	s := newTestService(t, f, 1)

	s.Day(context.Background(), march4)

	require.Len(t, f.scheduleArgs, 1)
	assert.Equal(t, time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC), f.scheduleArgs[0][0])
	assert.Equal(t, time.Date(2025, time.March, 4, 23, 59, 59, 0, time.UTC), f.scheduleArgs[0][1])
}

func TestDayDuplicateLessonFirstWins(t *testing.T) {
	day := scheduleDay("2025-03-04")
	first := lesson("100", 1, "10")
	first.Title = ptr("Дроби")
	dup := lesson("100", 2, "20")
	dup.Title = ptr("Оптика")
	day.Lessons = []gateway.Lesson{first, dup}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Equal(t, "Дроби", got[0].Title)
	assert.Equal(t, "Математика", got[0].Subject)
}

func TestDayDropsLessonWithUnlistedSubject(t *testing.T) {
	day := scheduleDay("2025-03-04")
	day.Lessons = []gateway.Lesson{lesson("100", 1, "99"), lesson("101", 2, "20")}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Equal(t, "101", got[0].ID)
}

func TestDayIgnoresAdjacentDays(t *testing.T) {
	other := scheduleDay("2025-03-05")
	other.Lessons = []gateway.Lesson{lesson("200", 1, "10")}
	day := scheduleDay("2025-03-04")
	day.Lessons = []gateway.Lesson{lesson("100", 1, "10")}
	f := &fakeGateway{scheduleFn: func(time.Time, time.Time) (gateway.Schedule, error) {
		return gateway.Schedule{Days: []gateway.ScheduleDay{other, day}}, nil
	}}
	s := newTestService(t, f, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Equal(t, "100", got[0].ID)
}

func TestDaySortsByLessonNumber(t *testing.T) {
	day := scheduleDay("2025-03-04")
	day.Lessons = []gateway.Lesson{lesson("103", 3, "10"), lesson("101", 1, "20"), lesson("102", 2, "10")}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Number, got[1].Number, got[2].Number})
}

func TestDayReconcilesLesson(t *testing.T) {
	day := scheduleDay("2025-03-04")
	l := lesson("100", 2, "10", "w1", "w2")
	l.Building = ptr("Корпус 1")
	l.Place = ptr("301")
	l.Floor = ptr(gateway.Scalar("3"))
	l.Status = ptr("Conducted")
	day.Lessons = []gateway.Lesson{l}
	day.Works = []gateway.Work{{ID: "w1", WorkType: "1"}, {ID: "w2", WorkType: "2"}}
	day.WorkTypes = []gateway.DayWorkType{{ID: "1", Name: "Домашняя работа"}}
	day.Homeworks = []gateway.Homework{{
		ID:          "w1",
		Type:        "Homework",
		Text:        ptr("  №12, №15 "),
		Files:       []gateway.Scalar{"f1", "f1", "f9"},
		IsImportant: true,
		SentDate:    ptr("2025-03-03T18:00:00"),
	}}
	day.Files = []gateway.File{{ID: "f1", Name: "task.pdf", DownloadURL: "https://files/1"}}
	day.LessonLogEntries = []gateway.LessonLog{
		{LessonStr: "100", PersonStr: "p2", Status: "Absent"},
		{LessonStr: "100", PersonStr: "p1", Status: "Late"},
	}
	mood := "Хорошо"
	day.Marks = []gateway.Mark{
		{PersonStr: "p1", WorkStr: "w2", Value: "5", Mood: &mood},
		{PersonStr: "p2", WorkStr: "w1", Value: "2"},
	}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)
	s.refs.WorkTypes.Set("2", "Контрольная работа")

	got := s.Day(context.Background(), march4)

	want := []Lesson{{
		ID:         "100",
		Number:     2,
		Time:       "08:30 - 09:15",
		SubjectID:  "10",
		Subject:    "Математика",
		Title:      "Математика",
		Teacher:    "Иванова И.И.",
		Classroom:  "Корпус 1 301, этаж 3",
		Status:     "Conducted",
		Attendance: "Late",
		Works: []WorkRef{
			{ID: "w1", Type: "Домашняя работа"},
			{ID: "w2", Type: "Контрольная работа"},
		},
		Homework:  "№12, №15",
		Files:     []string{"task.pdf (https://files/1)"},
		Important: true,
		SentDate:  "2025-03-03T18:00:00",
		Marks: []MarkDetail{{
			Value:       "5",
			WorkType:    "Контрольная работа",
			Mood:        "Хорошо",
			LessonTitle: "Математика",
		}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reconciled lesson mismatch (-want +got):\n%s", diff)
	}
}

func TestDayDefaults(t *testing.T) {
	day := scheduleDay("2025-03-04")
	l := gateway.Lesson{ID: "100", SubjectID: "20", Works: []gateway.Scalar{"w1"}}
	day.Lessons = []gateway.Lesson{l}
	day.Works = []gateway.Work{{ID: "w1", WorkType: "77"}}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Equal(t, Unknown, got[0].Teacher)
	assert.Equal(t, NotSpecified, got[0].Classroom)
	assert.Equal(t, Present, got[0].Attendance)
	assert.Equal(t, UnknownTime, got[0].Time)
	assert.Equal(t, "Физика", got[0].Title)
	assert.Equal(t, NoHomework, got[0].Homework)
	assert.Equal(t, []WorkRef{{ID: "w1", Type: UnknownWorkType}}, got[0].Works)
	assert.Empty(t, got[0].SentDate)
}

func TestDayHomeworkPlaceholders(t *testing.T) {
	for _, text := range []string{"-", ".", "нет", "НЕТ", "Нет задания", "  нет задания  ", ""} {
		t.Run(text, func(t *testing.T) {
			day := scheduleDay("2025-03-04")
			day.Lessons = []gateway.Lesson{lesson("100", 1, "10", "w1")}
			day.Works = []gateway.Work{{ID: "w1", WorkType: "1"}}
			day.Homeworks = []gateway.Homework{{ID: "w1", Type: "Homework", Text: ptr(text)}}
			s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

			got := s.Day(context.Background(), march4)

			require.Len(t, got, 1)
			assert.Equal(t, NoHomework, got[0].Homework)
		})
	}
}

func TestDayHomeworkFilesOnly(t *testing.T) {
	day := scheduleDay("2025-03-04")
	day.Lessons = []gateway.Lesson{lesson("100", 1, "10", "w1")}
	day.Homeworks = []gateway.Homework{{ID: "w1", Type: "Homework", Text: ptr("-"), Files: []gateway.Scalar{"f1"}}}
	day.Files = []gateway.File{{ID: "f1", DownloadURL: "https://files/1"}}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Homework)
	assert.Equal(t, []string{"Файл (https://files/1)"}, got[0].Files)
}

func TestDayHomeworkMergesRecords(t *testing.T) {
	day := scheduleDay("2025-03-04")
	day.Lessons = []gateway.Lesson{lesson("100", 1, "10", "w1", "w2", "w3")}
	day.Homeworks = []gateway.Homework{
		{ID: "w1", Type: "Homework", Text: ptr("Читать §5"), SentDate: ptr("2025-03-01T10:00:00")},
		{ID: "w2", Type: "Homework", Text: ptr("Упр. 3"), SentDate: ptr("2025-03-02T09:00:00")},
		{ID: "w3", Type: "LessonTestWork", Text: ptr("not homework"), IsImportant: true},
	}
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)

	got := s.Day(context.Background(), march4)

	require.Len(t, got, 1)
	assert.Equal(t, "Читать §5\nУпр. 3", got[0].Homework)
	assert.Equal(t, "2025-03-02T09:00:00", got[0].SentDate)
	assert.False(t, got[0].Important)
}

func TestDayMergesReferenceEntries(t *testing.T) {
	day := scheduleDay("2025-03-04")
	s := newTestService(t, &fakeGateway{scheduleFn: singleDay(day)}, 1)
	s.refs.Subjects.Set("10", "Алгебра")

	s.Day(context.Background(), march4)

	name, _ := s.refs.Subjects.Get("10")
	assert.Equal(t, "Алгебра", name, "existing entries are never overwritten")
	name, _ = s.refs.Subjects.Get("20")
	assert.Equal(t, "Физика", name)
	info, ok := s.refs.Teachers.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "Иванова И.И.", info.ShortName)
}

func TestClearScheduleCacheRefetches(t *testing.T) {
	f := &fakeGateway{}
	s := newTestService(t, f, 1)

	s.Day(context.Background(), march4)
	s.ClearScheduleCache()
	s.Day(context.Background(), march4)

	assert.Equal(t, int32(2), f.scheduleCalls.Load())
}

func TestScheduleRejectsInvertedRange(t *testing.T) {
	s := newTestService(t, &fakeGateway{}, 1)

	_, err := s.Schedule(context.Background(), march4, march4.AddDate(0, 0, -1))

	assert.ErrorIs(t, err, ErrInvalidRange)
}

func rangeFeed(start time.Time, _ time.Time) (gateway.Schedule, error) {
	date := start.Format(DateLayout)
	day := scheduleDay(date)
	day.Lessons = []gateway.Lesson{lesson("L"+date, start.Day()%3+1, "10")}
	return gateway.Schedule{Days: []gateway.ScheduleDay{day}}, nil
}

func TestScheduleRangeMatchesSingleDays(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		ranged := newTestService(t, &fakeGateway{scheduleFn: rangeFeed}, concurrency)
		single := newTestService(t, &fakeGateway{scheduleFn: rangeFeed}, 1)
		end := march4.AddDate(0, 0, 6)

		days, err := ranged.Schedule(context.Background(), march4, end)
		require.NoError(t, err)
		require.Len(t, days, 7)

		for i, day := range days {
			d := march4.AddDate(0, 0, i)
			assert.Equal(t, d.Format(DateLayout), day.Date)
			if diff := cmp.Diff(single.Day(context.Background(), d), day.Lessons); diff != "" {
				t.Errorf("concurrency %d day %s (-single +range):\n%s", concurrency, day.Date, diff)
			}
		}
	}
}
