package session

import (
	"context"
	"io"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
)

// Export file details.
const (
	ExportFilename    = "attendance.xlsx"
	ExportSheetName   = "Attendance"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Status string

const (
	StatusMatched        Status = "matched"
	StatusAlreadyPresent Status = "already_present"
	StatusNotFound       Status = "not_found"
)

// Source tells where a scanned payload came from.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceCamera Source = "camera"
	SourceCLI    Source = "cli"
)

type (
	// Result is the outcome of processing one scanned payload.
	// Name and PCNo are only set when Status is StatusMatched.
	Result struct {
		Status Status   `json:"status"`
		ID     string   `json:"id"`
		Name   string   `json:"name,omitempty"`
		PCNo   null.Int `json:"pc_no"`
	}

	// ImageScan is the outcome of scanning an image: one Result per distinct barcode found.
	// Barcodes == 0 means no barcode was found in the image.
	ImageScan struct {
		Barcodes int      `json:"barcodes"`
		Results  []Result `json:"results"`
	}

	// State is the mutable bookkeeping of a session, next to its roster.
	State struct {
		Lab       string
		Capacity  int
		PCCounter int
		StartedAt time.Time
		present   map[string]struct{}
	}

	CameraStatus struct {
		Running bool   `json:"running"`
		URL     string `json:"url,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	Summary struct {
		ID         string       `json:"session_id"`
		Lab        string       `json:"lab"`
		Department string       `json:"department"`
		Capacity   int          `json:"capacity"`
		Total      int          `json:"total"`
		Present    int          `json:"present"`
		Absent     int          `json:"absent"`
		PCCounter  int          `json:"pc_counter"`
		StartedAt  time.Time    `json:"started_at"`
		Camera     CameraStatus `json:"camera"`
		Rows       []roster.Row `json:"rows"`
	}

	StartParams struct {
		File       io.Reader
		Filename   string
		Department string
		Lab        string
		// Replaces is the ID of the caller's current session, if any. It is discarded.
		Replaces string
	}

	// ScanRecord is the audit entry of one scan attempt.
	ScanRecord struct {
		ID        string    `json:"id" db:"id"`
		SessionID string    `json:"session_id" db:"session_id"`
		Payload   string    `json:"payload" db:"payload"`
		Status    Status    `json:"status" db:"status"`
		Name      string    `json:"name" db:"name"`
		PCNo      null.Int  `json:"pc_no" db:"pc_no"`
		Source    Source    `json:"source" db:"source"`
		Lab       string    `json:"lab" db:"lab"`
		ScannedAt time.Time `json:"scanned_at" db:"scanned_at"`
	}

	// Frame is one captured video frame and the barcode payloads decoded from it, in decode order.
	Frame struct {
		Image       []byte
		ContentType string
		Payloads    []string
		CapturedAt  time.Time
	}
)

// ScanRecordOrderings are the fields scan records can be ordered by.
var ScanRecordOrderings = []string{"scanned_at", "payload", "status", "source"}

type (
	// Repository stores the scan audit log.
	Repository interface {
		CreateScanRecord(ctx context.Context, rec ScanRecord) error
		QueryScanRecords(ctx context.Context, sessionID string, ordering []core.DBOrdering) ([]ScanRecord, error)
	}

	// SheetCodec reads roster tables from and writes attendance sheets to spreadsheet files.
	SheetCodec interface {
		Read(r io.Reader, filename string) (roster.Table, error)
		Write(w io.Writer, sheetName string, header []string, records [][]interface{}) error
	}

	// BarcodeDecoder finds the barcodes in an encoded image (JPEG, PNG, GIF).
	// It returns the payloads in decode order, none when the image holds no barcode,
	// and core.ErrDecodeFailure when the bytes are not an image.
	BarcodeDecoder interface {
		Decode(data []byte) ([]string, error)
	}

	// Camera is an opened video source.
	Camera interface {
		// Run pulls frames and sends them (with their decoded payloads) to frames
		// until ctx is done or the source fails. It never closes frames.
		Run(ctx context.Context, frames chan<- Frame) error
		Close() error
	}

	// CameraOpener opens video sources; core.ErrResourceUnavailable when it cannot.
	CameraOpener interface {
		Open(ctx context.Context, url string) (Camera, error)
	}
)
