// Package attendance contains the attendance analytics core: working-day
// calendars, per-student and per-cohort statistics, risk and trend scoring,
// bulk write validation and completion reporting.
//
// Everything here is a pure function over in-memory values. Functions that
// depend on the current date take an explicit now argument; callers supply it
// from a timeutil.Clock.
package attendance

import (
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the attendance state of one student on one date.
type Status string

const (
	StatusPresent         Status = "PRESENT"
	StatusAbsentSick      Status = "ABSENT_SICK"
	StatusAbsentExcused   Status = "ABSENT_EXCUSED"
	StatusAbsentUnexcused Status = "ABSENT_UNEXCUSED"
)

// AllStatuses lists statuses in display order.
var AllStatuses = []Status{
	StatusPresent,
	StatusAbsentSick,
	StatusAbsentExcused,
	StatusAbsentUnexcused,
}

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsentSick, StatusAbsentExcused, StatusAbsentUnexcused:
		return true
	}
	return false
}

// IsAbsent reports whether s is any of the absence statuses.
func (s Status) IsAbsent() bool {
	return s == StatusAbsentSick || s == StatusAbsentExcused || s == StatusAbsentUnexcused
}

// Code returns the single-letter code used in CSV exports.
func (s Status) Code() string {
	switch s {
	case StatusPresent:
		return "P"
	case StatusAbsentSick:
		return "S"
	case StatusAbsentExcused:
		return "E"
	case StatusAbsentUnexcused:
		return "U"
	}
	return ""
}

// Label returns the human-readable label.
func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusAbsentSick:
		return "Absent (Sick)"
	case StatusAbsentExcused:
		return "Absent (Excused)"
	case StatusAbsentUnexcused:
		return "Absent (Unexcused)"
	}
	return string(s)
}

// ParseStatusCode maps a P/S/E/U code (case-insensitive) back to a Status.
func ParseStatusCode(code string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "P":
		return StatusPresent, true
	case "S":
		return StatusAbsentSick, true
	case "E":
		return StatusAbsentExcused, true
	case "U":
		return StatusAbsentUnexcused, true
	}
	return "", false
}

// ParseStatus accepts either an enum name ("absent_sick") or a code ("S").
func ParseStatus(value string) (Status, error) {
	if s := Status(strings.ToUpper(strings.TrimSpace(value))); s.IsValid() {
		return s, nil
	}
	if s, ok := ParseStatusCode(value); ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", value)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS AND READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// Record is one student's attendance on one calendar date.
type Record struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
	StudentID string    `json:"studentId"`
}

// Cohort is the identity and period of a cohort. EndDate is nil for cohorts
// that are still running.
type Cohort struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Student is an enrolled student.
type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Statistics is the attendance aggregate for a student or a cohort.
// Rates are percentages rounded to two decimals.
type Statistics struct {
	TotalDays           int     `json:"totalDays"`
	PresentDays         int     `json:"presentDays"`
	AbsentDays          int     `json:"absentDays"`
	AbsentSickDays      int     `json:"absentSickDays"`
	AbsentExcusedDays   int     `json:"absentExcusedDays"`
	AbsentUnexcusedDays int     `json:"absentUnexcusedDays"`
	UnrecordedDays      int     `json:"unrecordedDays"`
	AttendanceRate      float64 `json:"attendanceRate"`
	AbsenteeRate        float64 `json:"absenteeRate"`
}

// MonthlyStatistics is Statistics restricted to one calendar month.
type MonthlyStatistics struct {
	Statistics
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Trend compares recent attendance with the older baseline.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// RiskLevel classifies how urgently a student needs follow-up.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// StreakType is the kind of run a streak counts.
type StreakType string

const (
	StreakPresent StreakType = "present"
	StreakAbsent  StreakType = "absent"
)

// Streak describes consecutive records of the same kind.
type Streak struct {
	CurrentStreak int        `json:"currentStreak"`
	LongestStreak int        `json:"longestStreak"`
	Type          StreakType `json:"type"`
}

// StudentData is the per-student read model.
type StudentData struct {
	StudentID   string     `json:"studentId"`
	StudentName string     `json:"studentName"`
	Records     []Record   `json:"records"`
	Statistics  Statistics `json:"statistics"`
	Trend       Trend      `json:"trend"`
	RiskLevel   RiskLevel  `json:"riskLevel"`
}

// CohortData is the per-cohort read model.
type CohortData struct {
	CohortID      string     `json:"cohortId"`
	CohortName    string     `json:"cohortName"`
	StartDate     time.Time  `json:"startDate"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	TotalStudents int        `json:"totalStudents"`
	Statistics    Statistics `json:"statistics"`
}

// CohortReport bundles a cohort read model with its students. It is the unit
// cached by ReportCache.
type CohortReport struct {
	Cohort      CohortData    `json:"cohort"`
	Students    []StudentData `json:"students"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// ImportRun records an applied CSV import.
type ImportRun struct {
	ID          string    `json:"id"`
	CohortID    string    `json:"cohortId"`
	Fingerprint string    `json:"fingerprint"`
	RecordCount int       `json:"recordCount"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
