package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"diary/internal/diary"
)

// Kind names an analysis.
type Kind string

const (
	KindWeeks   Kind = "weeks"
	KindMarks   Kind = "marks"
	KindRanking Kind = "ranking"
)

var (
	ErrUnknownKind   = errors.New("unknown analysis kind")
	ErrRangeRequired = errors.New("start and end dates required")
	ErrQuarter       = errors.New("quarter required")
)

// Request describes one analysis run.
type Request struct {
	Kind    Kind      `json:"type"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
	Quarter int       `json:"quarter,omitempty"`
	Year    *int      `json:"year,omitempty"`
}

// Validate checks that the fields the kind needs are present.
func (r Request) Validate() error {
	switch r.Kind {
	case KindWeeks, KindMarks:
		if r.Start.IsZero() || r.End.IsZero() {
			return ErrRangeRequired
		}
		if r.End.Before(r.Start) {
			return diary.ErrInvalidRange
		}
	case KindRanking:
		if r.Quarter == 0 {
			return ErrQuarter
		}
		if r.Quarter < 1 || r.Quarter > 4 {
			return diary.ErrInvalidQuarter
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	return nil
}

// Source is the part of the diary service analyses read from.
type Source interface {
	Schedule(ctx context.Context, start, end time.Time) ([]diary.DaySchedule, error)
	UpcomingTests(ctx context.Context) []diary.UpcomingTest
	Marks(ctx context.Context, start, end time.Time) (map[string][]diary.LedgerEntry, error)
	ClassRanking(ctx context.Context, quarter int, year *int, opts ...diary.AggregateOption) ([]diary.RankEntry, error)
}

var _ Source = (*diary.Service)(nil)

// Service assembles prompts from diary data and summarizes them.
type Service struct {
	source     Source
	prompts    *Prompts
	summarizer Summarizer
	log        *zap.Logger
}

// NewService wires an analysis service.
func NewService(source Source, prompts *Prompts, summarizer Summarizer, log *zap.Logger) *Service {
	return &Service{source: source, prompts: prompts, summarizer: summarizer, log: log}
}

// Run produces the analysis text for req.
func (s *Service) Run(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	started := time.Now()
	prompt, err := s.Prompt(ctx, req)
	if err != nil {
		return "", err
	}
	out, err := s.summarizer.Summarize(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", req.Kind, err)
	}
	s.log.Info("analysis finished",
		zap.String("kind", string(req.Kind)),
		zap.Int("chars", len(out)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// Prompt renders the prompt for req without summarizing it.
func (s *Service) Prompt(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindWeeks:
		days, err := s.source.Schedule(ctx, req.Start, req.End)
		if err != nil {
			return "", err
		}
		return s.render(req.Kind, map[string]any{
			"ScheduleData": days,
			"WorksData":    s.source.UpcomingTests(ctx),
		})
	case KindMarks:
		marks, err := s.source.Marks(ctx, req.Start, req.End)
		if err != nil {
			return "", err
		}
		return s.render(req.Kind, map[string]any{"MarksData": marks})
	case KindRanking:
		ranking, err := s.source.ClassRanking(ctx, req.Quarter, req.Year)
		if err != nil {
			return "", err
		}
		return s.render(req.Kind, map[string]any{"RankingData": ranking})
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
}

// render JSON-encodes every value before filling the template.
func (s *Service) render(kind Kind, values map[string]any) (string, error) {
	data := make(map[string]string, len(values))
	for k, v := range values {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", k, err)
		}
		data[k] = string(raw)
	}
	return s.prompts.Render(kind, data)
}
