package session

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type memRepo struct {
	mu      sync.Mutex
	records []ScanRecord
	err     error
}

func (r *memRepo) CreateScanRecord(_ context.Context, rec ScanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memRepo) QueryScanRecords(_ context.Context, sessionID string, _ []core.DBOrdering) ([]ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScanRecord, 0)
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeSheets struct {
	table   roster.Table
	readErr error

	sheetName string
	header    []string
	records   [][]interface{}
}

func (s *fakeSheets) Read(io.Reader, string) (roster.Table, error) {
	return s.table, s.readErr
}

func (s *fakeSheets) Write(w io.Writer, sheetName string, header []string, records [][]interface{}) error {
	s.sheetName, s.header, s.records = sheetName, header, records
	_, err := w.Write([]byte("xlsx"))
	return err
}

// fakeDecoder maps image bytes to payloads; unknown bytes are a decode failure.
type fakeDecoder map[string][]string

func (d fakeDecoder) Decode(data []byte) ([]string, error) {
	payloads, ok := d[string(data)]
	if !ok {
		return nil, errors.Wrap(core.ErrDecodeFailure, "unknown image")
	}
	return payloads, nil
}

// fakeCamera sends its frames then fails with err, or blocks until cancelled when err is nil.
type fakeCamera struct {
	frames []Frame
	err    error
	closed atomic.Bool
}

func (c *fakeCamera) Run(ctx context.Context, frames chan<- Frame) error {
	for _, f := range c.frames {
		select {
		case frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeCamera) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeOpener returns cam, after running onOpen when set.
type fakeOpener struct {
	cam    *fakeCamera
	err    error
	onOpen func()
}

func (o fakeOpener) Open(context.Context, string) (Camera, error) {
	if o.onOpen != nil {
		o.onOpen()
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.cam, nil
}

func sortedPCNos(rows []roster.Row) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if r.PCNo.Valid {
			out = append(out, r.PCNo.Int)
		}
	}
	sort.Ints(out)
	return out
}
