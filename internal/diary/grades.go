package diary

import (
	"math"
	"strconv"
	"strings"
)

// GradeMode selects how mark values are turned into numbers.
type GradeMode int

const (
	// NumericOnly counts marks whose value is a non-negative number and
	// drops qualitative tokens.
	NumericOnly GradeMode = iota
	// MapQualitative additionally maps the qualitative tokens of
	// qualitativeGrades to their numeric equivalents.
	MapQualitative
)

var qualitativeGrades = map[string]float64{
	"отлично":             5,
	"хорошо":              4,
	"удовлетворительно":   3,
	"неудовлетворительно": 2,
}

// AggregateOption configures one aggregation call.
type AggregateOption func(*aggregateConfig)

type aggregateConfig struct {
	mode GradeMode
}

// WithGradeMode sets the grade interpretation for the call.
func WithGradeMode(mode GradeMode) AggregateOption {
	return func(c *aggregateConfig) { c.mode = mode }
}

func aggregateOptions(opts []AggregateOption) aggregateConfig {
	var cfg aggregateConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// isNumericGrade accepts digits with at most one decimal point.
func isNumericGrade(v string) bool {
	if v == "" {
		return false
	}
	dot, digits := false, 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

// parseGrade converts a mark value according to mode.
func parseGrade(value string, mode GradeMode) (float64, bool) {
	v := strings.TrimSpace(value)
	if isNumericGrade(v) {
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	if mode == MapQualitative {
		if f, ok := qualitativeGrades[strings.ToLower(v)]; ok {
			return f, true
		}
	}
	return 0, false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
