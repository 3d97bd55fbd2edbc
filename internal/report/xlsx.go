package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"

	"clubhub/internal/registration"
)

const (
	summarySheet    = "Summary"
	attendanceSheet = "Attendance"
	timeLayout      = "2006-01-02 15:04"
)

var attendanceHeader = []string{
	"Roll", "Name", "Department", "Year", "Section", "Phone", "Team Code", "Team Name",
	"Status", "On Spot", "Registered At", "Checked In At", "Checked In By",
}

// WriteXLSX renders the summary and the per-student attendance list.
func WriteXLSX(w io.Writer, s Summary, regs []registration.Registration) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(attendanceSheet); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	if err := writeSummary(f, s, header); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeAttendance(f, regs, header); err != nil {
		return fmt.Errorf("attendance sheet: %w", err)
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSummary(f *excelize.File, s Summary, header int) error {
	rows := [][]any{
		{"Event", s.EventTitle},
		{"Type", string(s.EventType)},
		{"Date", s.Date},
		{"Venue", s.Venue},
		{"Registered", s.Total},
		{"Present", s.Present},
		{"Absent", s.Absent},
		{"Attendance %", s.Rate},
		{"On-spot", s.OnSpot},
		{"Teams", s.Teams},
	}
	row := 1
	for _, r := range rows {
		if err := f.SetSheetRow(summarySheet, cell("A", row), &r); err != nil {
			return err
		}
		row++
	}
	row++
	for _, section := range []struct {
		title string
		items []Breakdown
	}{{"Department", s.ByDepartment}, {"Year", s.ByYear}} {
		head := []any{section.title, "Registered", "Present", "Attendance %"}
		if err := f.SetSheetRow(summarySheet, cell("A", row), &head); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, cell("A", row), cell("D", row), header); err != nil {
			return err
		}
		row++
		for _, b := range section.items {
			line := []any{b.Key, b.Registered, b.Present, b.Rate}
			if err := f.SetSheetRow(summarySheet, cell("A", row), &line); err != nil {
				return err
			}
			row++
		}
		row++
	}
	return f.SetColWidth(summarySheet, "A", "D", 18)
}

func writeAttendance(f *excelize.File, regs []registration.Registration, header int) error {
	if err := f.SetSheetRow(attendanceSheet, "A1", &attendanceHeader); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(attendanceHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(attendanceSheet, "A1", cell(last, 1), header); err != nil {
		return err
	}

	sorted := slices.Clone(regs)
	slices.SortFunc(sorted, func(a, b registration.Registration) int { return cmp.Compare(a.StudentRoll, b.StudentRoll) })
	for i, r := range sorted {
		checkedIn := ""
		if r.CheckedInAt != nil {
			checkedIn = r.CheckedInAt.Format(timeLayout)
		}
		onSpot := "No"
		if r.IsOnSpot {
			onSpot = "Yes"
		}
		line := []any{
			r.StudentRoll, r.StudentName, r.Department, r.Year, r.Section, r.Phone, r.TeamCode, r.TeamName,
			string(r.Status), onSpot, r.RegisteredAt.Format(timeLayout), checkedIn, r.CheckedInBy,
		}
		if err := f.SetSheetRow(attendanceSheet, cell("A", i+2), &line); err != nil {
			return err
		}
	}
	if err := f.SetPanes(attendanceSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.SetColWidth(attendanceSheet, "A", last, 16)
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
