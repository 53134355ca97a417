package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary/internal/metrics"
)

// DefaultBaseURL is the public diary REST API root.
const DefaultBaseURL = "https://api.dnevnik.ru/v2"

// TimestampLayout is how dates are sent to the API.
const TimestampLayout = "2006-01-02T15:04:05"

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("diary api %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client calls the diary REST API on behalf of one access token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	log     *zap.Logger
}

// New creates a client. The timeout bounds every upstream call.
func New(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Get fetches path with query params and decodes the JSON body into out.
// The endpoint label is used for metrics only.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := endpointLabel(path)
	started := time.Now()
	defer func() {
		metrics.GatewayLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	}()

	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Access-Token", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("diary api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.GatewayRequests.WithLabelValues(endpoint, "status").Inc()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Path: path, Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.GatewayRequests.WithLabelValues(endpoint, "decode").Inc()
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	metrics.GatewayRequests.WithLabelValues(endpoint, "ok").Inc()
	c.log.Debug("diary api call", zap.String("path", path), zap.Duration("took", time.Since(started)))
	return nil
}

// Context returns the identity of the token owner.
func (c *Client) Context(ctx context.Context) (UserContext, error) {
	var out UserContext
	err := c.Get(ctx, "users/me/context", nil, &out)
	return out, err
}

// GroupSubjects lists subjects of an education group.
func (c *Client) GroupSubjects(ctx context.Context, groupID string) ([]Subject, error) {
	var out []Subject
	err := c.Get(ctx, "edu-groups/"+groupID+"/subjects", nil, &out)
	return out, err
}

// GroupPupils lists pupils of an education group.
func (c *Client) GroupPupils(ctx context.Context, groupID string) ([]Student, error) {
	var out []Student
	err := c.Get(ctx, "edu-groups/"+groupID+"/students", nil, &out)
	return out, err
}

// SchoolTeachers lists teachers of a school.
func (c *Client) SchoolTeachers(ctx context.Context, schoolID string) ([]Teacher, error) {
	var out []Teacher
	err := c.Get(ctx, "schools/"+schoolID+"/teachers", nil, &out)
	return out, err
}

// WorkTypes lists work types configured for a school.
func (c *Client) WorkTypes(ctx context.Context, schoolID string) ([]WorkType, error) {
	var out []WorkType
	err := c.Get(ctx, "work-types/"+schoolID, nil, &out)
	return out, err
}

// Schedule returns the raw schedule of a person in a group for [start, end].
func (c *Client) Schedule(ctx context.Context, personID, groupID string, start, end time.Time) (Schedule, error) {
	var out Schedule
	params := url.Values{}
	params.Set("startDate", start.Format(TimestampLayout))
	params.Set("endDate", end.Format(TimestampLayout))
	err := c.Get(ctx, "persons/"+personID+"/groups/"+groupID+"/schedules", params, &out)
	return out, err
}

// ReportingPeriods lists the reporting periods of a group.
func (c *Client) ReportingPeriods(ctx context.Context, groupID string) ([]ReportingPeriod, error) {
	var out []ReportingPeriod
	err := c.Get(ctx, "edu-groups/"+groupID+"/reporting-periods", nil, &out)
	return out, err
}

// LessonInfo returns the detail view of a lesson.
func (c *Client) LessonInfo(ctx context.Context, lessonID string) (LessonInfo, error) {
	var out LessonInfo
	err := c.Get(ctx, "lessons/"+lessonID, nil, &out)
	return out, err
}

// PersonMarks returns all marks of a person in a school for [start, end].
func (c *Client) PersonMarks(ctx context.Context, personID, schoolID string, start, end time.Time) ([]Mark, error) {
	var out []Mark
	path := fmt.Sprintf("persons/%s/schools/%s/marks/%s/%s", personID, schoolID,
		start.Format(TimestampLayout), end.Format(TimestampLayout))
	err := c.Get(ctx, path, nil, &out)
	return out, err
}

// PersonSubjectMarks returns the marks of a person in one subject for [start, end].
func (c *Client) PersonSubjectMarks(ctx context.Context, personID, subjectID string, start, end time.Time) ([]Mark, error) {
	var out []Mark
	path := fmt.Sprintf("persons/%s/subjects/%s/marks/%s/%s", personID, subjectID,
		start.Format(TimestampLayout), end.Format(TimestampLayout))
	err := c.Get(ctx, path, nil, &out)
	return out, err
}

// PersonWorkMarks returns the marks of a person for one work.
func (c *Client) PersonWorkMarks(ctx context.Context, personID, workID string) ([]Mark, error) {
	var out []Mark
	err := c.Get(ctx, "persons/"+personID+"/works/"+workID+"/marks", nil, &out)
	return out, err
}

// SubjectMarksHistogram returns the mark distribution of a subject over a period.
func (c *Client) SubjectMarksHistogram(ctx context.Context, groupID, periodID, subjectID string) (SubjectHistogram, error) {
	var out SubjectHistogram
	path := fmt.Sprintf("periods/%s/subjects/%s/groups/%s/marks/histogram", periodID, subjectID, groupID)
	err := c.Get(ctx, path, nil, &out)
	return out, err
}

// MarksHistogram returns the class distribution of one work.
func (c *Client) MarksHistogram(ctx context.Context, workID string) (Histogram, error) {
	var out Histogram
	err := c.Get(ctx, "works/"+workID+"/marks/histogram", nil, &out)
	return out, err
}

// Homeworks returns the homework feed of a person for [start, end].
func (c *Client) Homeworks(ctx context.Context, personID, schoolID string, start, end time.Time) (HomeworkFeed, error) {
	var out HomeworkFeed
	params := url.Values{}
	params.Set("startDate", start.Format("2006-01-02"))
	params.Set("endDate", end.Format("2006-01-02"))
	err := c.Get(ctx, "persons/"+personID+"/school/"+schoolID+"/homeworks", params, &out)
	return out, err
}

// endpointLabel collapses ids out of a path so metric cardinality stays low.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if p[0] >= '0' && p[0] <= '9' {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
