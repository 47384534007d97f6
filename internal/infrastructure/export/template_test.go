package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

func TestGenerateTemplateCSV_ParsesBack(t *testing.T) {
	template := attendance.GenerateBulkTemplate(
		[]string{"s1", "s2"},
		timeutil.Date(2024, 1, 5),
		timeutil.Date(2024, 1, 8),
		attendance.TemplateOptions{},
	)
	names := map[string]string{"s1": "Alice"}

	out := GenerateTemplateCSV(template, names)

	assert.Equal(t, "Attendance Details\n"+
		`"Student ID","Student Name","Date","Status","Code"`+"\n"+
		`"s1","Alice","2024-01-05","Present","P"`+"\n"+
		`"s1","Alice","2024-01-08","Present","P"`+"\n"+
		`"s2","","2024-01-05","Present","P"`+"\n"+
		`"s2","","2024-01-08","Present","P"`+"\n", out)

	parsed := ParseCSV(out)
	require.True(t, parsed.Success, parsed.Errors)
	require.Len(t, parsed.Data, 4)
	assert.Equal(t, "s2", parsed.Data[3].StudentID)
	assert.Equal(t, timeutil.Date(2024, 1, 8), parsed.Data[3].Date)
	assert.Equal(t, attendance.StatusPresent, parsed.Data[3].Status)
}
