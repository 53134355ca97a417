package diary

import (
	"context"
	"time"

	"go.uber.org/zap"

	"diary/internal/gateway"
)

// Period is a resolved reporting period.
type Period struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
}

// Contains reports whether t lies within the period, bounds included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.Finish)
}

// timestampLayouts are the formats the API uses for period and mark dates.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

func parseTimestamp(v string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func validQuarter(quarter int) error {
	if quarter < 1 || quarter > 4 {
		return ErrInvalidQuarter
	}
	return nil
}

// ResolvePeriod maps a quarter number, and optionally an academic year, to
// a concrete reporting period of the group. ok is false when no period
// matches or the period listing failed; only an invalid quarter is an error.
func (s *Service) ResolvePeriod(ctx context.Context, quarter int, year *int) (p Period, ok bool, err error) {
	if err := validQuarter(quarter); err != nil {
		return Period{}, false, err
	}
	periods, err := call(ctx, s, func(ctx context.Context) ([]gateway.ReportingPeriod, error) {
		return s.api.ReportingPeriods(ctx, s.groupID)
	})
	if err != nil {
		s.log.Warn("reporting periods unavailable", zap.Error(err))
		return Period{}, false, nil
	}
	p, ok = selectPeriod(periods, quarter, year, s.now(), s.loc, s.log)
	if !ok {
		s.log.Info("no reporting period for quarter", zap.Int("quarter", quarter))
	}
	return p, ok, nil
}

// expectedNumber returns the zero-based ordinal a period of type kind must
// carry to represent quarter, and false for unsupported types.
func expectedNumber(kind string, quarter int) (int, bool) {
	switch kind {
	case "Quarter", "Trimester", "Module":
		return quarter - 1, true
	case "Semester":
		if quarter <= 2 {
			return 0, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// academicYear is the start year of a period when it begins in
// September or later, otherwise the year it finishes in.
func academicYear(start, finish time.Time) int {
	if start.Month() >= time.September {
		return start.Year()
	}
	return finish.Year()
}

// selectPeriod prefers a candidate containing now, then the candidate whose
// start is closest to now. Records with unparsable dates are skipped.
func selectPeriod(periods []gateway.ReportingPeriod, quarter int, year *int, now time.Time, loc *time.Location, log *zap.Logger) (Period, bool) {
	var (
		closest  Period
		found    bool
		bestDiff time.Duration
	)
	for _, raw := range periods {
		want, supported := expectedNumber(raw.Type, quarter)
		if !supported || raw.Number == nil || *raw.Number != want {
			continue
		}
		start, okStart := parseTimestamp(raw.Start, loc)
		finish, okFinish := parseTimestamp(raw.Finish, loc)
		if !okStart || !okFinish {
			log.Warn("reporting period with bad dates skipped",
				zap.String("period_id", raw.ID.String()),
				zap.String("start", raw.Start),
				zap.String("finish", raw.Finish))
			continue
		}
		if year != nil {
			eff := academicYear(start, finish)
			if eff != *year && eff != *year-1 {
				continue
			}
		}
		p := Period{ID: raw.ID.String(), Name: raw.Name, Start: start, Finish: finish}
		if p.Contains(now) {
			return p, true
		}
		diff := start.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			closest, bestDiff, found = p, diff, true
		}
	}
	return closest, found
}
