package diary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diary/internal/gateway"
)

func period(id, kind string, number int, start, finish string) gateway.ReportingPeriod {
	return gateway.ReportingPeriod{
		ID:     gateway.Scalar(id),
		Type:   kind,
		Number: ptr(number),
		Name:   id,
		Start:  start + "T00:00:00",
		Finish: finish + "T00:00:00",
	}
}

func quarters2024() []gateway.ReportingPeriod {
	return []gateway.ReportingPeriod{
		period("q1", "Quarter", 0, "2024-09-01", "2024-10-27"),
		period("q2", "Quarter", 1, "2024-11-05", "2024-12-28"),
		period("q3", "Quarter", 2, "2025-01-09", "2025-03-23"),
		period("q4", "Quarter", 3, "2025-04-01", "2025-05-31"),
	}
}

func TestResolvePeriodQuarter(t *testing.T) {
	s := newTestService(t, &fakeGateway{periods: quarters2024()}, 1)

	p, ok, err := s.ResolvePeriod(context.Background(), 3, nil)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "q3", p.ID)
	assert.Equal(t, time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2025, time.March, 23, 0, 0, 0, 0, time.UTC), p.Finish)
}

func TestResolvePeriodInvalidQuarter(t *testing.T) {
	s := newTestService(t, &fakeGateway{periods: quarters2024()}, 1)

	for _, q := range []int{0, 5, -1} {
		_, ok, err := s.ResolvePeriod(context.Background(), q, nil)
		assert.ErrorIs(t, err, ErrInvalidQuarter)
		assert.False(t, ok)
	}
}

func TestResolvePeriodListingFailure(t *testing.T) {
	s := newTestService(t, &fakeGateway{periodsErr: errUpstream}, 1)

	_, ok, err := s.ResolvePeriod(context.Background(), 1, nil)

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResolvePeriodNoMatch(t *testing.T) {
	s := newTestService(t, &fakeGateway{periods: []gateway.ReportingPeriod{
		period("q1", "Quarter", 0, "2024-09-01", "2024-10-27"),
		period("y", "Year", 0, "2024-09-01", "2025-05-31"),
	}}, 1)

	_, ok, err := s.ResolvePeriod(context.Background(), 2, nil)

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectPeriodPrefersContainingNow(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		// Starts closer to now but does not contain it.
		period("next", "Quarter", 2, "2025-02-11", "2025-05-01"),
		period("current", "Quarter", 2, "2025-01-01", "2025-02-10"),
	}
	now := time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)

	p, ok := selectPeriod(periods, 3, nil, now, time.UTC, nopLogger())

	require.True(t, ok)
	assert.Equal(t, "current", p.ID)
}

func TestSelectPeriodClosestStart(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		period("2022", "Quarter", 0, "2022-09-01", "2022-10-30"),
		period("2024", "Quarter", 0, "2024-09-02", "2024-10-27"),
		period("2023", "Quarter", 0, "2023-09-01", "2023-10-29"),
	}

	p, ok := selectPeriod(periods, 1, nil, fixedNow, time.UTC, nopLogger())

	require.True(t, ok)
	assert.Equal(t, "2024", p.ID)
}

func TestSelectPeriodSemester(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		period("s1", "Semester", 0, "2024-09-01", "2024-12-28"),
		period("s2", "Semester", 1, "2025-01-09", "2025-05-31"),
	}
	cases := map[int]string{1: "s1", 2: "s1", 3: "s2", 4: "s2"}
	for quarter, want := range cases {
		p, ok := selectPeriod(periods, quarter, nil, fixedNow, time.UTC, nopLogger())
		require.True(t, ok, "quarter %d", quarter)
		assert.Equal(t, want, p.ID, "quarter %d", quarter)
	}
}

func TestSelectPeriodTrimesterAndModule(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		period("t2", "Trimester", 1, "2024-12-01", "2025-02-28"),
		period("m4", "Module", 3, "2025-04-01", "2025-05-31"),
	}

	p, ok := selectPeriod(periods, 2, nil, fixedNow, time.UTC, nopLogger())
	require.True(t, ok)
	assert.Equal(t, "t2", p.ID)

	p, ok = selectPeriod(periods, 4, nil, fixedNow, time.UTC, nopLogger())
	require.True(t, ok)
	assert.Equal(t, "m4", p.ID)
}

func TestSelectPeriodYearFilter(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		period("2022", "Quarter", 0, "2022-09-01", "2022-10-30"),
		period("2023", "Quarter", 0, "2023-09-01", "2023-10-29"),
		period("2024", "Quarter", 0, "2024-09-02", "2024-10-27"),
	}

	p, ok := selectPeriod(periods, 1, ptr(2022), fixedNow, time.UTC, nopLogger())
	require.True(t, ok)
	assert.Equal(t, "2022", p.ID)

	// year-1 is accepted as well, so 2023 admits both 2022 and 2023 and the
	// closer start wins.
	p, ok = selectPeriod(periods, 1, ptr(2023), fixedNow, time.UTC, nopLogger())
	require.True(t, ok)
	assert.Equal(t, "2023", p.ID)

	_, ok = selectPeriod(periods, 1, ptr(2030), fixedNow, time.UTC, nopLogger())
	assert.False(t, ok)
}

func TestSelectPeriodSpringStartUsesFinishYear(t *testing.T) {
	periods := []gateway.ReportingPeriod{
		period("q3", "Quarter", 2, "2025-01-09", "2025-03-23"),
	}

	_, ok := selectPeriod(periods, 3, ptr(2025), fixedNow, time.UTC, nopLogger())
	assert.True(t, ok)
	_, ok = selectPeriod(periods, 3, ptr(2023), fixedNow, time.UTC, nopLogger())
	assert.False(t, ok)
}

func TestSelectPeriodSkipsBadDates(t *testing.T) {
	bad := period("bad", "Quarter", 2, "2025-01-09", "2025-03-23")
	bad.Start = "09.01.2025"
	periods := []gateway.ReportingPeriod{
		bad,
		period("good", "Quarter", 2, "2023-01-09", "2023-03-23"),
	}

	p, ok := selectPeriod(periods, 3, nil, fixedNow, time.UTC, nopLogger())

	require.True(t, ok)
	assert.Equal(t, "good", p.ID)
}

func TestSelectPeriodFractionalTimestamps(t *testing.T) {
	p := period("q3", "Quarter", 2, "", "")
	p.Start = "2025-01-09T00:00:00.123"
	p.Finish = "2025-03-23T23:59:59Z"

	got, ok := selectPeriod([]gateway.ReportingPeriod{p}, 3, nil, fixedNow, time.UTC, nopLogger())

	require.True(t, ok)
	assert.Equal(t, 2025, got.Finish.Year())
}

func TestPeriodContainsBounds(t *testing.T) {
	p := Period{
		Start:  time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC),
		Finish: time.Date(2025, 3, 23, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, p.Contains(p.Start))
	assert.True(t, p.Contains(p.Finish))
	assert.False(t, p.Contains(p.Finish.Add(time.Second)))
}
