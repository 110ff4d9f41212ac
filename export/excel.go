package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"rollbook-server-go/models"
)

const (
	// ContentType is the MIME type of .xlsx downloads
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Students"
)

// Header is the column order of exported sheets
var Header = []interface{}{"id", "name", "email", "phone", "division"}

// --- Excel Export ---

// WriteStudents writes one header row plus one row per student to w.
// The whole workbook is built in memory first.
func WriteStudents(w io.Writer, students []models.Student) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("closing excel file", "error", err)
		}
	}()

	// a new file starts with "Sheet1"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &Header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for i, st := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		row := []interface{}{st.ID, st.Name, st.Email, st.Phone, st.Division}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for student %s: %w", st.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return nil
}

// StudentsWorkbook returns the .xlsx bytes for students
func StudentsWorkbook(students []models.Student) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteStudents(&buf, students); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DivisionFilename is the download name for one division's export
func DivisionFilename(division string) string {
	return division + "_students.xlsx"
}

// AllStudentsFilename is the download name for the full export
const AllStudentsFilename = "All_Students.xlsx"

// --- Excel Import ---

// ReadStudents reads students from the first sheet of an Excel stream.
// The first row is a header: columns titled name, email and phone are used
// wherever they are, otherwise the first three columns are taken in that order.
// Rows without a name are skipped. Returned students carry no id.
func ReadStudents(file io.Reader) ([]models.Student, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("closing excel file", "error", err)
		}
	}()

	// Assuming data is in the first sheet
	first := f.GetSheetName(0)
	if first == "" {
		return nil, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(first)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", first, err)
	}

	students := []models.Student{}
	if len(rows) == 0 {
		return students, nil
	}
	cols := importColumns(rows[0])

	for i, row := range rows[1:] {
		cell := func(col int) string {
			if col >= 0 && col < len(row) {
				return strings.TrimSpace(row[col])
			}
			return ""
		}
		st := models.Student{Name: cell(cols.name), Email: cell(cols.email), Phone: cell(cols.phone)}
		if st.Name == "" {
			slog.Warn("skipping row without a name", "row", i+2)
			continue
		}
		students = append(students, st)
	}
	return students, nil
}

type columns struct {
	name, email, phone int
}

func importColumns(header []string) columns {
	cols := columns{name: -1, email: -1, phone: -1}
	for i, title := range header {
		switch strings.ToLower(strings.TrimSpace(title)) {
		case "name":
			cols.name = i
		case "email":
			cols.email = i
		case "phone":
			cols.phone = i
		}
	}
	if cols.name < 0 {
		return columns{name: 0, email: 1, phone: 2}
	}
	return cols
}
