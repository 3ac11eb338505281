package roster

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendance/core"
)

// Required source columns.
const (
	ColID         = "ID_number"
	ColDepartment = "Department"
	ColName       = "Name"
)

// Session columns, appended on export. Dropped from the passthrough columns on ingest.
const (
	ColPCNo         = "PC_no"
	ColAttendance   = "Attendance"
	ColTimestamp    = "Timestamp"
	ColAvailability = "Availability"
)

var (
	RequiredColumns = []string{ColID, ColDepartment, ColName}
	SessionColumns  = []string{ColPCNo, ColAttendance, ColTimestamp, ColAvailability}
)

type Attendance string

const (
	Absent  Attendance = "Absent"
	Present Attendance = "Present"
)

type Availability string

const (
	Available   Availability = "Yes"
	Unavailable Availability = "No"
)

// Table is a raw tabular dataset: a header row and the data rows, as read from a spreadsheet.
type Table struct {
	Header []string
	Rows   [][]string
}

type Row struct {
	IDNumber     string       `json:"id_number"`
	Department   string       `json:"department"`
	Name         string       `json:"name"`
	PCNo         null.Int     `json:"pc_no"`
	Attendance   Attendance   `json:"attendance"`
	Timestamp    null.Time    `json:"timestamp"`
	Availability Availability `json:"availability"`

	// Cells holds every source cell of the row, aligned with Roster.Columns.
	Cells []string `json:"-"`
}

func (r Row) IsPresent() bool { return r.Attendance == Present }

// Roster holds the selected rows of a table, in source order, indexed by ID.
// Rows are neither added nor removed once created.
// It is not safe for concurrent use; its owner serializes access.
type Roster struct {
	Department string
	columns    []string
	rows       []Row
	index      map[string]int
}

// New selects the rows of t whose Department equals department (all rows when department is empty)
// and initialises their session fields.
func New(t Table, department string) (*Roster, error) {
	department = core.CleanString(department)

	// unnamed columns are kept under their 0-based position: "Unnamed: 3"
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		if header[i] = core.CleanString(h); header[i] == "" {
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; dup {
			return nil, errors.Wrapf(core.ErrMalformedTable, "duplicate column %q", h)
		}
		pos[h] = i
	}
	for _, col := range RequiredColumns {
		if _, ok := pos[col]; !ok {
			return nil, errors.Wrapf(core.ErrMalformedTable, "missing required column %q", col)
		}
	}

	// keep the source columns minus any session columns left over from a previous export
	keep := make([]int, 0, len(header))
	columns := make([]string, 0, len(header))
	for i, h := range header {
		if isSessionColumn(h) {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, h)
	}

	ros := &Roster{
		Department: department,
		columns:    columns,
		rows:       make([]Row, 0, len(t.Rows)),
		index:      make(map[string]int, len(t.Rows)),
	}
	for n, raw := range t.Rows {
		if isBlank(raw) {
			continue
		}
		cell := func(i int) string {
			if i < len(raw) {
				return core.CleanString(raw[i])
			}
			return ""
		}

		if department != "" && cell(pos[ColDepartment]) != department {
			continue
		}

		line := n + 2 // 1-based, after the header
		id := cell(pos[ColID])
		if id == "" {
			return nil, errors.Wrapf(core.ErrMalformedTable, "row %d: empty %s", line, ColID)
		}
		if _, dup := ros.index[id]; dup {
			return nil, errors.Wrapf(core.ErrMalformedTable, "row %d: duplicate %s %q", line, ColID, id)
		}

		cells := make([]string, len(keep))
		for j, i := range keep {
			cells[j] = cell(i)
		}
		ros.index[id] = len(ros.rows)
		ros.rows = append(ros.rows, Row{
			IDNumber:     id,
			Department:   cell(pos[ColDepartment]),
			Name:         cell(pos[ColName]),
			Attendance:   Absent,
			Availability: Available,
			Cells:        cells,
		})
	}
	return ros, nil
}

// Columns returns the source column names, in source order.
func (ros *Roster) Columns() []string {
	return append([]string(nil), ros.columns...)
}

// Header returns the export header: source columns followed by the session columns.
func (ros *Roster) Header() []string {
	h := make([]string, 0, len(ros.columns)+len(SessionColumns))
	h = append(h, ros.columns...)
	return append(h, SessionColumns...)
}

func (ros *Roster) Len() int { return len(ros.rows) }

// Rows returns a copy of the rows, in source order.
func (ros *Roster) Rows() []Row {
	rows := make([]Row, len(ros.rows))
	copy(rows, ros.rows)
	return rows
}

func (ros *Roster) Get(id string) (Row, bool) {
	i, ok := ros.index[id]
	if !ok {
		return Row{}, false
	}
	return ros.rows[i], true
}

// MarkPresent records the attendance of the student with the given ID.
// A row is marked once: later calls leave it untouched and return false.
func (ros *Roster) MarkPresent(id string, at time.Time, pcNo null.Int) (Row, bool) {
	i, ok := ros.index[id]
	if !ok || ros.rows[i].IsPresent() {
		return Row{}, false
	}
	row := &ros.rows[i]
	row.Attendance = Present
	row.Timestamp = null.TimeFrom(at)
	row.PCNo = pcNo
	return *row, true
}

// Counts returns the number of present and absent students.
func (ros *Roster) Counts() (present, absent int) {
	for _, r := range ros.rows {
		if r.IsPresent() {
			present++
		} else {
			absent++
		}
	}
	return present, absent
}

// Records returns the export rows (header excluded), in source order.
// PC_no cells are ints when assigned, every other cell is a string.
func (ros *Roster) Records(timestampLayout string) [][]interface{} {
	records := make([][]interface{}, 0, len(ros.rows))
	for _, r := range ros.rows {
		rec := make([]interface{}, 0, len(r.Cells)+len(SessionColumns))
		for _, c := range r.Cells {
			rec = append(rec, c)
		}

		var pcNo interface{} = ""
		if r.PCNo.Valid {
			pcNo = r.PCNo.Int
		}
		var tstamp string
		if r.Timestamp.Valid {
			tstamp = r.Timestamp.Time.Format(timestampLayout)
		}
		records = append(records, append(rec, pcNo, string(r.Attendance), tstamp, string(r.Availability)))
	}
	return records
}

func isSessionColumn(col string) bool {
	for _, c := range SessionColumns {
		if c == col {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if core.CleanString(c) != "" {
			return false
		}
	}
	return true
}
