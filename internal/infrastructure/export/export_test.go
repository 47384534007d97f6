package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

var exportNow = time.Date(2024, 1, 12, 15, 30, 0, 0, time.UTC)

func day(m time.Month, d int) time.Time { return timeutil.Date(2024, m, d) }

func fixture() (attendance.CohortData, []attendance.StudentData) {
	cohort := attendance.Cohort{ID: "c1", Name: "Web Dev 24", StartDate: day(1, 1)}
	alice := attendance.BuildStudentData(attendance.Student{ID: "s1", Name: "Alice"}, []attendance.Record{
		{ID: "r3", StudentID: "s1", Date: day(1, 3), Status: attendance.StatusAbsentSick},
		{ID: "r1", StudentID: "s1", Date: day(1, 1), Status: attendance.StatusPresent},
		{ID: "r2", StudentID: "s1", Date: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
	}, 10, 14)
	bob := attendance.BuildStudentData(attendance.Student{ID: "s2", Name: `Bob "The Builder"`}, []attendance.Record{
		{ID: "r4", StudentID: "s2", Date: day(1, 2), Status: attendance.StatusAbsentUnexcused},
	}, 10, 14)
	students := []attendance.StudentData{alice, bob}
	return attendance.BuildCohortData(cohort, students), students
}

func TestPrepareExportData_DefaultRange(t *testing.T) {
	cohort, students := fixture()

	data := PrepareExportData(cohort, students, Options{}, exportNow)

	assert.Equal(t, DateRange{Start: "2024-01-01", End: "2024-01-12"}, data.Metadata.DateRange)
	assert.Equal(t, 2, data.Metadata.TotalStudents)
	assert.Equal(t, 4, data.Metadata.TotalRecords)
	assert.Nil(t, data.Statistics)
	assert.Equal(t, []Record{
		{Date: "2024-01-01", Status: attendance.StatusPresent},
		{Date: "2024-01-02", Status: attendance.StatusPresent},
		{Date: "2024-01-03", Status: attendance.StatusAbsentSick},
	}, data.Students[0].Records)
}

func TestPrepareExportData_ExplicitRange(t *testing.T) {
	cohort, students := fixture()
	from, to := day(1, 2), day(1, 2)

	data := PrepareExportData(cohort, students, Options{StartDate: &from, EndDate: &to, IncludeStatistics: true}, exportNow)

	assert.Equal(t, DateRange{Start: "2024-01-02", End: "2024-01-02"}, data.Metadata.DateRange)
	assert.Equal(t, 2, data.Metadata.TotalRecords)
	require.NotNil(t, data.Statistics)
	assert.Equal(t, cohort.Statistics, *data.Statistics)
}

func TestGenerateCSV_Layout(t *testing.T) {
	cohort, students := fixture()
	data := PrepareExportData(cohort, students, Options{IncludeStatistics: true}, exportNow)

	csv := GenerateCSV(data)

	expected := strings.Join([]string{
		"# Attendance Export",
		"# Cohort: Web Dev 24 (c1)",
		"# Date Range: 2024-01-01 to 2024-01-12",
		"# Export Date: 2024-01-12T15:30:00Z",
		"# Total Students: 2",
		"# Total Records: 4",
		"",
		"Student Summary",
		`"Student ID","Student Name","Total Days","Present","Absent (Sick)","Absent (Excused)","Absent (Unexcused)","Unrecorded","Attendance Rate (%)"`,
		`"s1","Alice",10,2,1,0,0,7,20`,
		`"s2","Bob ""The Builder""",10,0,0,0,1,9,0`,
		"",
		"Attendance Details",
		`"Student ID","Student Name","Date","Status","Code"`,
		`"s1","Alice","2024-01-01","Present","P"`,
		`"s1","Alice","2024-01-02","Present","P"`,
		`"s1","Alice","2024-01-03","Absent (Sick)","S"`,
		`"s2","Bob ""The Builder""","2024-01-02","Absent (Unexcused)","U"`,
		"",
		"Cohort Statistics",
		`"Total Days",20`,
		`"Present Days",2`,
		`"Absent Days",2`,
		`"Unrecorded Days",16`,
		`"Attendance Rate (%)",10`,
		`"Absentee Rate (%)",10`,
		"",
	}, "\n")
	assert.Equal(t, expected, csv)
}

func TestGenerateCSV_RoundTripsDetailRows(t *testing.T) {
	cohort, students := fixture()
	data := PrepareExportData(cohort, students, Options{IncludeStatistics: true}, exportNow)

	parsed := ParseCSV(GenerateCSV(data))

	require.True(t, parsed.Success, parsed.Errors)
	type triple struct {
		id, date string
		status   attendance.Status
	}
	var want, got []triple
	for _, s := range data.Students {
		for _, r := range s.Records {
			want = append(want, triple{s.StudentID, r.Date, r.Status})
		}
	}
	for _, r := range parsed.Data {
		got = append(got, triple{r.StudentID, timeutil.FormatDateStr(r.Date), r.Status})
	}
	assert.Equal(t, want, got)
	assert.Equal(t, `Bob "The Builder"`, parsed.Data[3].StudentName)
}

func TestGenerateJSON_RoundTrip(t *testing.T) {
	cohort, students := fixture()
	data := PrepareExportData(cohort, students, Options{IncludeStatistics: true}, exportNow)

	out, err := GenerateJSON(data)
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"metadata\": {")

	var decoded Data
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.True(t, decoded.Metadata.ExportDate.Equal(data.Metadata.ExportDate))
	assert.Equal(t, data.Students, decoded.Students)
	assert.Equal(t, data.Statistics, decoded.Statistics)

	again, err := GenerateJSON(decoded)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
