package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Scalar is a JSON string or number normalized to its text form. The
// upstream API mixes numeric ids, "*_str" string ids and nulls freely.
type Scalar string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	*s = Scalar(data)
	return nil
}

// String returns the normalized text.
func (s Scalar) String() string { return string(s) }

// Empty reports whether the value is missing or the "0" placeholder id.
func (s Scalar) Empty() bool {
	v := strings.TrimSpace(string(s))
	return v == "" || v == "0"
}

// prefer returns the first non-empty value.
func prefer(values ...Scalar) string {
	for _, v := range values {
		if !v.Empty() {
			return v.String()
		}
	}
	return ""
}

// UserContext is the response of users/me/context.
type UserContext struct {
	PersonID  Scalar `json:"personId"`
	PersonStr Scalar `json:"personId_str"`
	Schools   []struct {
		ID Scalar `json:"id"`
	} `json:"schools"`
	EduGroups []struct {
		ID    Scalar `json:"id"`
		IDStr Scalar `json:"id_str"`
	} `json:"eduGroups"`
}

// Identity returns the person, school and group ids; any of them may be empty.
func (c UserContext) Identity() (personID, schoolID, groupID string) {
	personID = prefer(c.PersonStr, c.PersonID)
	if len(c.Schools) > 0 {
		schoolID = prefer(c.Schools[0].ID)
	}
	if len(c.EduGroups) > 0 {
		groupID = prefer(c.EduGroups[0].IDStr, c.EduGroups[0].ID)
	}
	return personID, schoolID, groupID
}

// Subject is a group subject.
type Subject struct {
	ID   Scalar `json:"id"`
	Name string `json:"name"`
}

// Student is a group pupil.
type Student struct {
	ID        Scalar `json:"id"`
	ShortName string `json:"shortName"`
}

// Teacher is a school teacher record. The upstream endpoint uses
// PascalCase keys.
type Teacher struct {
	ID         Scalar `json:"Id"`
	ShortName  string `json:"ShortName"`
	FirstName  string `json:"FirstName"`
	MiddleName string `json:"MiddleName"`
	LastName   string `json:"LastName"`
	Subjects   Scalar `json:"Subjects"`
	Email      string `json:"Email"`
	Position   string `json:"NameTeacherPosition"`
}

// FullName joins first, middle and last names.
func (t Teacher) FullName() string {
	return strings.Join(strings.Fields(t.FirstName+" "+t.MiddleName+" "+t.LastName), " ")
}

// WorkType is a school work type.
type WorkType struct {
	ID    Scalar `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Schedule is the raw schedule feed for a date range.
type Schedule struct {
	Days []ScheduleDay `json:"days"`
}

// ScheduleDay holds every collection the API returns for one day.
type ScheduleDay struct {
	Date             string        `json:"date"`
	Lessons          []Lesson      `json:"lessons"`
	Subjects         []Subject     `json:"subjects"`
	Teachers         []DayTeacher  `json:"teachers"`
	Homeworks        []Homework    `json:"homeworks"`
	Works            []Work        `json:"works"`
	WorkTypes        []DayWorkType `json:"workTypes"`
	LessonLogEntries []LessonLog   `json:"lessonLogEntries"`
	Marks            []Mark        `json:"marks"`
	Files            []File        `json:"files"`
}

// Lesson is a raw lesson inside a schedule day.
type Lesson struct {
	ID          Scalar   `json:"id"`
	IDStr       Scalar   `json:"id_str"`
	Number      *int     `json:"number"`
	Date        string   `json:"date"`
	SubjectID   Scalar   `json:"subjectId"`
	SubjectName *string  `json:"subjectName"`
	Teachers    []Scalar `json:"teachers"`
	Works       []Scalar `json:"works"`
	Building    *string  `json:"building"`
	Place       *string  `json:"place"`
	Floor       *Scalar  `json:"floor"`
	Title       *string  `json:"title"`
	Hours       *string  `json:"hours"`
	Status      *string  `json:"status"`
}

// LessonID prefers the string id.
func (l Lesson) LessonID() string { return prefer(l.IDStr, l.ID) }

// DayTeacher wraps the person record of a teacher listed for a day.
type DayTeacher struct {
	Person struct {
		ID        Scalar `json:"id"`
		ShortName string `json:"shortName"`
		FullName  string `json:"fullName"`
	} `json:"person"`
}

// Homework is a homework work item.
type Homework struct {
	ID          Scalar   `json:"id"`
	Type        string   `json:"type"`
	Text        *string  `json:"text"`
	Files       []Scalar `json:"files"`
	IsImportant bool     `json:"isImportant"`
	SentDate    *string  `json:"sentDate"`
}

// Work is a gradable work item.
type Work struct {
	ID       Scalar `json:"id"`
	WorkType Scalar `json:"workType"`
	Lesson   Scalar `json:"lesson"`
}

// DayWorkType is the work type listing embedded in a schedule day.
type DayWorkType struct {
	ID   Scalar `json:"id"`
	Name string `json:"name"`
}

// LessonLog is an attendance log entry.
type LessonLog struct {
	Lesson    Scalar `json:"lesson"`
	LessonStr Scalar `json:"lesson_str"`
	Person    Scalar `json:"person"`
	PersonStr Scalar `json:"person_str"`
	Status    string `json:"status"`
}

// LessonID prefers the string id.
func (l LessonLog) LessonID() string { return prefer(l.LessonStr, l.Lesson) }

// PersonID prefers the string id.
func (l LessonLog) PersonID() string { return prefer(l.PersonStr, l.Person) }

// Mark is a raw mark record. The same shape comes back from schedule days
// and from the person mark endpoints.
type Mark struct {
	ID        Scalar  `json:"id"`
	Value     Scalar  `json:"value"`
	Mood      *string `json:"mood"`
	Date      string  `json:"date"`
	Person    Scalar  `json:"person"`
	PersonStr Scalar  `json:"person_str"`
	Work      Scalar  `json:"work"`
	WorkStr   Scalar  `json:"work_str"`
	Lesson    Scalar  `json:"lesson"`
	LessonStr Scalar  `json:"lesson_str"`
	WorkType  Scalar  `json:"workType"`
}

// PersonID prefers the string id.
func (m Mark) PersonID() string { return prefer(m.PersonStr, m.Person) }

// WorkID prefers the string id.
func (m Mark) WorkID() string { return prefer(m.WorkStr, m.Work) }

// LessonID prefers the string id.
func (m Mark) LessonID() string { return prefer(m.LessonStr, m.Lesson) }

// File is a homework attachment.
type File struct {
	ID          Scalar `json:"id"`
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
}

// ReportingPeriod is a dated interval of a group.
type ReportingPeriod struct {
	ID     Scalar `json:"id"`
	Type   string `json:"type"`
	Number *int   `json:"number"`
	Name   string `json:"name"`
	Start  string `json:"start"`
	Finish string `json:"finish"`
	Year   Scalar `json:"year"`
}

// LessonInfo is the detail view of one lesson.
type LessonInfo struct {
	ID      Scalar   `json:"id"`
	Title   string   `json:"title"`
	Date    string   `json:"date"`
	Subject *Subject `json:"subject"`
	Works   []Work   `json:"works"`
}

// Histogram is the mark distribution of a single work.
type Histogram struct {
	MarkNumbers []MarkNumber `json:"markNumbers"`
}

// MarkNumber groups mark counts.
type MarkNumber struct {
	Marks []MarkCount `json:"marks"`
}

// MarkCount is one bar of a histogram.
type MarkCount struct {
	Value Scalar `json:"value"`
	Count int    `json:"count"`
}

// SubjectHistogram is the per-work distribution of a subject over a period.
type SubjectHistogram struct {
	Works []Histogram `json:"works"`
}

// HomeworkFeed is the person homework listing.
type HomeworkFeed struct {
	Lessons []Lesson `json:"lessons"`
}
