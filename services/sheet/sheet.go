package sheetsvc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
	"github.com/trezcool/attendance/core/session"
)

var (
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = []byte("\xef\xbb\xbf")
)

const defaultColWidth = 16

// Codec reads rosters from xlsx or csv files and writes attendance sheets as xlsx.
type Codec struct{}

var _ session.SheetCodec = (*Codec)(nil)

func NewCodec() *Codec {
	return &Codec{}
}

// Read parses the first sheet of an xlsx workbook, or a csv file when filename says so
// (or the content is not a zip archive). The first row is the header.
func (c *Codec) Read(r io.Reader, filename string) (roster.Table, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return roster.Table{}, errors.Wrap(err, "reading upload")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return roster.Table{}, errors.Wrap(core.ErrMalformedTable, "empty file")
	}

	var rows [][]string
	if isCSV(filename, data) {
		rows, err = readCSV(data)
	} else {
		rows, err = readXLSX(data)
	}
	if err != nil {
		return roster.Table{}, err
	}
	if len(rows) == 0 {
		return roster.Table{}, errors.Wrap(core.ErrMalformedTable, "no header row")
	}
	return roster.Table{Header: rows[0], Rows: rows[1:]}, nil
}

func isCSV(filename string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return true
	case ".xlsx", ".xlsm":
		return false
	}
	return !bytes.HasPrefix(data, zipMagic)
}

func readCSV(data []byte) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	cr.FieldsPerRecord = -1 // ragged rows are padded by the roster
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(core.ErrMalformedTable, "parsing csv: %v", err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(core.ErrMalformedTable, "opening spreadsheet: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Wrap(core.ErrMalformedTable, "spreadsheet has no sheet")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(core.ErrMalformedTable, "reading sheet %q: %v", sheets[0], err)
	}
	return rows, nil
}

// Write writes a single-sheet xlsx workbook: a bold, frozen header row followed by the records.
func (c *Codec) Write(w io.Writer, sheetName string, header []string, records [][]interface{}) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetList()[0], sheetName); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for i, rec := range records {
		rec := rec
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "computing cell name")
		}
		if err = f.SetSheetRow(sheetName, cell, &rec); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	if len(header) > 0 {
		if err := c.styleHeader(f, sheetName, len(header)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

func (c *Codec) styleHeader(f *excelize.File, sheet string, cols int) error {
	lastCol, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return errors.Wrap(err, "computing column name")
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return errors.Wrap(err, "styling header")
	}
	if err = f.SetColWidth(sheet, "A", lastCol, defaultColWidth); err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	err = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return errors.Wrap(err, "freezing header")
}

// WriteCSV writes the attendance sheet as csv, for terminals and pipes.
func WriteCSV(w io.Writer, header []string, records [][]interface{}) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, rec := range records {
		line := make([]string, len(rec))
		for i, v := range rec {
			line[i] = toString(v)
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
