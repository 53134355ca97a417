package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"diary/internal/analysis"
	"diary/internal/diary"
)

type rangeFlags struct {
	start, end string
}

func (r *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "", "First day (default: today)")
	cmd.Flags().StringVar(&r.end, "end", "", "Last day (default: start)")
}

// parse reads the flags as calendar days in loc, the diary service zone.
func (r rangeFlags) parse(loc *time.Location) (time.Time, time.Time, error) {
	start := time.Now().In(loc)
	if r.start != "" {
		t, err := time.ParseInLocation(diary.DateLayout, r.start, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
		}
		start = t
	}
	end := start
	if r.end != "" {
		t, err := time.ParseInLocation(diary.DateLayout, r.end, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
		}
		end = t
	}
	return start, end, nil
}

type quarterFlags struct {
	quarter     int
	year        int
	qualitative bool
}

func (q *quarterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&q.quarter, "quarter", "q", 0, "Quarter 1-4")
	cmd.Flags().IntVar(&q.year, "year", 0, "Academic year (default: current)")
	cmd.Flags().BoolVar(&q.qualitative, "qualitative", false, "Count pass/fail marks as 5 and 2")
	_ = cmd.MarkFlagRequired("quarter")
}

func (q quarterFlags) yearPtr() *int {
	if q.year == 0 {
		return nil
	}
	y := q.year
	return &y
}

func (q quarterFlags) opts() []diary.AggregateOption {
	if q.qualitative {
		return []diary.AggregateOption{diary.WithGradeMode(diary.MapQualitative)}
	}
	return nil
}

func registerCommands(root *cobra.Command) {
	root.AddCommand(
		scheduleCmd(),
		marksCmd(),
		lastMarksCmd(),
		finalCmd(),
		rankingCmd(),
		statsCmd(),
		teachersCmd(),
		testsCmd(),
		promptCmd(),
	)
}

func scheduleCmd() *cobra.Command {
	var r rangeFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Reconciled lessons per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := r.parse(cfg.Location())
			if err != nil {
				return err
			}
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			days, err := svc.Schedule(ctx, start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, days)
		},
	}
	r.bind(cmd)
	return cmd
}

func marksCmd() *cobra.Command {
	var r rangeFlags
	cmd := &cobra.Command{
		Use:   "marks",
		Short: "Marks grouped by subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := r.parse(cfg.Location())
			if err != nil {
				return err
			}
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			marks, err := svc.Marks(ctx, start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, marks)
		},
	}
	r.bind(cmd)
	return cmd
}

func lastMarksCmd() *cobra.Command {
	var (
		count     int
		subjectID string
	)
	cmd := &cobra.Command{
		Use:   "last-marks",
		Short: "Most recent marks with class distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be positive")
			}
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			marks, err := svc.LastMarks(ctx, count, subjectID)
			if err != nil {
				return err
			}
			return printJSON(cmd, marks)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "How many marks")
	cmd.Flags().StringVar(&subjectID, "subject", "", "Only this subject id")
	return cmd
}

func finalCmd() *cobra.Command {
	var q quarterFlags
	cmd := &cobra.Command{
		Use:   "final",
		Short: "Per-subject marks and averages for a quarter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			marks, err := svc.FinalMarks(ctx, q.quarter, q.yearPtr(), q.opts()...)
			if err != nil {
				return err
			}
			return printJSON(cmd, marks)
		},
	}
	q.bind(cmd)
	return cmd
}

func rankingCmd() *cobra.Command {
	var (
		q         quarterFlags
		subjectID string
	)
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Class ranking by average mark, overall or for one subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			var ranking []diary.RankEntry
			if subjectID != "" {
				ranking, err = svc.SubjectRanking(ctx, q.quarter, subjectID, q.yearPtr(), q.opts()...)
			} else {
				ranking, err = svc.ClassRanking(ctx, q.quarter, q.yearPtr(), q.opts()...)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, ranking)
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&subjectID, "subject", "", "Rank within this subject id")
	return cmd
}

func statsCmd() *cobra.Command {
	var (
		q         quarterFlags
		subjectID string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Mark distribution for the class or one subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			if subjectID != "" {
				stats, err := svc.SubjectStats(ctx, q.quarter, subjectID, q.yearPtr())
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			}
			stats, err := svc.ClassStats(ctx, q.quarter, q.yearPtr())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&subjectID, "subject", "", "Histogram of this subject id")
	return cmd
}

func teachersCmd() *cobra.Command {
	var r rangeFlags
	cmd := &cobra.Command{
		Use:   "teachers",
		Short: "Teachers of the group's subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end time.Time
			if r.start != "" || r.end != "" {
				var err error
				if start, end, err = r.parse(cfg.Location()); err != nil {
					return err
				}
			}
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			teachers, err := svc.GroupTeachers(ctx, start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, teachers)
		},
	}
	r.bind(cmd)
	return cmd
}

func testsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "Weighty works scheduled for the next two weeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			return printJSON(cmd, svc.UpcomingTests(ctx))
		},
	}
}

func promptCmd() *cobra.Command {
	var (
		kind    string
		r       rangeFlags
		quarter int
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the language-model prompt an analysis would send",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := analysis.Request{Kind: analysis.Kind(kind), Quarter: quarter}
			if r.start != "" {
				var err error
				if req.Start, req.End, err = r.parse(cfg.Location()); err != nil {
					return err
				}
			}
			if err := req.Validate(); err != nil {
				return err
			}
			prompts, err := analysis.LoadPrompts(cfg.PromptsFile)
			if err != nil {
				return err
			}
			ctx, cancel, svc, err := session(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			text, err := analysis.NewService(svc, prompts, nil, logger).Prompt(ctx, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "weeks, marks or ranking")
	cmd.Flags().IntVarP(&quarter, "quarter", "q", 0, "Quarter for ranking prompts")
	r.bind(cmd)
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
