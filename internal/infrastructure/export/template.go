package export

import (
	"strings"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// GenerateTemplateCSV renders bulk records in the attendance details layout,
// so a filled-in template can be fed straight back to ParseCSV. names maps
// student IDs to display names; unknown IDs get an empty name.
func GenerateTemplateCSV(records []attendance.BulkRecord, names map[string]string) string {
	var b strings.Builder
	b.WriteString(sectionDetails + "\n")
	quotedRow(&b, "Student ID", "Student Name", "Date", "Status", "Code")
	for _, r := range records {
		quotedRow(&b, r.StudentID, names[r.StudentID], timeutil.FormatDateStr(r.Date), r.Status.Label(), r.Status.Code())
	}
	return b.String()
}
