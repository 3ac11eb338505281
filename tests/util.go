package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

// RosterHeader is the header of the rosters built by DefaultRoster.
var RosterHeader = []string{"ID_number", "Name", "Department", "Year"}

// DefaultRoster returns the rows of a small two-department roster.
func DefaultRoster() [][]string {
	return [][]string{
		{"S1", "Amani", "CS", "1"},
		{"S2", "Baraka", "EE", "1"},
		{"S3", "Chausiku", "CS", "2"},
		{"S4", "Dalila", "CS", "3"},
	}
}

// RosterXLSX returns a workbook holding header and rows on its first sheet.
func RosterXLSX(t *testing.T, header []string, rows ...[]string) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	sheet := wb.GetSheetName(0)
	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		require.NoError(t, wb.SetSheetRow(sheet, cell, &vals))
	}

	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// QRCodePNG returns a PNG image of a QR code encoding content.
func QRCodePNG(t *testing.T, content string) []byte {
	t.Helper()
	data, err := qrcode.Encode(content, qrcode.Medium, 256)
	require.NoError(t, err)
	return data
}

// ReadXLSX returns the rows of sheet in an xlsx workbook.
func ReadXLSX(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func CreateScanRecord(
	t *testing.T,
	repo session.Repository,
	sessionID, payload string,
	status session.Status,
	scannedAt time.Time,
	pcNo ...int,
) session.ScanRecord {
	rec := session.ScanRecord{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Payload:   payload,
		Status:    status,
		Source:    session.SourceHTTP,
		Lab:       "Lab 1",
		ScannedAt: scannedAt.UTC(),
	}
	if len(pcNo) > 0 {
		rec.PCNo = null.IntFrom(pcNo[0])
	}
	if status != session.StatusNotFound {
		rec.Name = "Student " + payload
	}
	if err := repo.CreateScanRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateScanRecord() failed: %v", err)
	}
	return rec
}

// RunScanRecordRepositoryTests checks the behaviour every scan record store shares.
// repo must be empty.
func RunScanRecordRepositoryTests(t *testing.T, repo session.Repository) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s1 := CreateScanRecord(t, repo, "session-1", "S3", session.StatusMatched, t0.Add(2*time.Second), 2)
	s2 := CreateScanRecord(t, repo, "session-1", "S1", session.StatusMatched, t0, 1)
	s3 := CreateScanRecord(t, repo, "session-1", "S9", session.StatusNotFound, t0.Add(time.Second))
	other := CreateScanRecord(t, repo, "session-2", "S1", session.StatusMatched, t0, 1)

	payloads := func(recs []session.ScanRecord) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.Payload)
		}
		return out
	}

	tests := []struct {
		name      string
		sessionID string
		ordering  []core.DBOrdering
		want      []string
	}{
		{
			name:      "oldest first",
			sessionID: "session-1",
			ordering:  []core.DBOrdering{{Field: "scanned_at", Ascending: true}},
			want:      []string{"S1", "S9", "S3"},
		},
		{
			name:      "newest first",
			sessionID: "session-1",
			ordering:  []core.DBOrdering{{Field: "scanned_at"}},
			want:      []string{"S3", "S9", "S1"},
		},
		{
			name:      "by status then payload",
			sessionID: "session-1",
			ordering:  []core.DBOrdering{{Field: "status", Ascending: true}, {Field: "payload"}},
			want:      []string{"S3", "S1", "S9"},
		},
		{
			name:      "unknown fields are ignored",
			sessionID: "session-1",
			ordering:  []core.DBOrdering{{Field: "name; DROP TABLE scan_records"}, {Field: "payload", Ascending: true}},
			want:      []string{"S1", "S3", "S9"},
		},
		{
			name:      "other session",
			sessionID: "session-2",
			want:      []string{"S1"},
		},
		{
			name:      "unknown session",
			sessionID: "nope",
			want:      []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryScanRecords(ctx, tt.sessionID, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, payloads(got))
		})
	}

	t.Run("fields survive a roundtrip", func(t *testing.T) {
		got, err := repo.QueryScanRecords(ctx, "session-1", []core.DBOrdering{{Field: "scanned_at", Ascending: true}})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, want := range []session.ScanRecord{s2, s3, s1} {
			assert.Equal(t, want.ID, got[i].ID)
			assert.Equal(t, want.Status, got[i].Status)
			assert.Equal(t, want.Name, got[i].Name)
			assert.Equal(t, want.PCNo, got[i].PCNo)
			assert.Equal(t, want.Source, got[i].Source)
			assert.Equal(t, want.Lab, got[i].Lab)
			assert.True(t, want.ScannedAt.Equal(got[i].ScannedAt), "scanned_at: want %v, got %v", want.ScannedAt, got[i].ScannedAt)
		}
	})

	t.Run("duplicate ID", func(t *testing.T) {
		assert.Error(t, repo.CreateScanRecord(ctx, other))
	})
}
