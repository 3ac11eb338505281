package session

import (
	"bytes"
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
)

type mailRecorder struct {
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = msg.Render()
		m.sent = append(m.sent, msg)
	}
}

func (m *mailRecorder) Wait() {}

type serviceFixture struct {
	svc    Service
	repo   *memRepo
	sheets *fakeSheets
	mails  *mailRecorder
	opener *fakeOpener
}

func setup(t *testing.T) serviceFixture {
	t.Helper()
	f := serviceFixture{
		repo: new(memRepo),
		sheets: &fakeSheets{table: roster.Table{
			Header: []string{"ID_number", "Department", "Name"},
			Rows:   [][]string{{"S1", "CS", "Ada"}, {"S2", "EE", "Bob"}, {"S3", "CS", "Cy"}},
		}},
		mails:  new(mailRecorder),
		opener: new(fakeOpener),
	}
	f.svc = NewService(Deps{
		Conf:   core.NewTestConfig(),
		Logger: nopLogger{},
		Repo:   f.repo,
		Sheets: f.sheets,
		Decoder: fakeDecoder{
			"one":     {"S1"},
			"many":    {"S1", "S3", "S1", "S9"},
			"nothing": {},
		},
		Cameras: f.opener,
		MailSvc: f.mails,
	})
	t.Cleanup(f.svc.Close)
	return f
}

func start(t *testing.T, svc Service, department string, replaces ...string) Summary {
	t.Helper()
	params := StartParams{File: bytes.NewReader(nil), Filename: "roster.xlsx", Department: department, Lab: " Lab 1 "}
	if len(replaces) > 0 {
		params.Replaces = replaces[0]
	}
	sum, err := svc.Start(context.Background(), params)
	require.NoError(t, err)
	return sum
}

func TestService_Start(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("no file", func(t *testing.T) {
		_, err := f.svc.Start(ctx, StartParams{Lab: "Lab 1"})
		vErr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, []core.FieldError{{Field: "masterfile", Error: "no file uploaded"}}, vErr.Fields)
	})

	t.Run("unreadable file", func(t *testing.T) {
		f.sheets.readErr = errors.Wrap(core.ErrMalformedTable, "not a spreadsheet")
		defer func() { f.sheets.readErr = nil }()
		_, err := f.svc.Start(ctx, StartParams{File: bytes.NewReader(nil), Lab: "Lab 1"})
		assert.Equal(t, core.ErrMalformedTable, errors.Cause(err))
	})

	t.Run("missing columns", func(t *testing.T) {
		table := f.sheets.table
		f.sheets.table = roster.Table{Header: []string{"ID_number"}}
		defer func() { f.sheets.table = table }()
		_, err := f.svc.Start(ctx, StartParams{File: bytes.NewReader(nil), Lab: "Lab 1"})
		assert.Equal(t, core.ErrMalformedTable, errors.Cause(err))
	})

	t.Run("filtered", func(t *testing.T) {
		sum := start(t, f.svc, "CS")
		assert.Equal(t, "Lab 1", sum.Lab)
		assert.Equal(t, "CS", sum.Department)
		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 2, sum.Absent)
		assert.Equal(t, 60, sum.Capacity)
		assert.Equal(t, 0, sum.PCCounter)
		assert.Len(t, sum.Rows, 2)
	})

	t.Run("replaces the previous session", func(t *testing.T) {
		old := start(t, f.svc, "")
		_, err := f.svc.Scan(ctx, old.ID, "S1", SourceHTTP)
		require.NoError(t, err)

		sum := start(t, f.svc, "", old.ID)
		assert.NotEqual(t, old.ID, sum.ID)
		assert.Equal(t, 0, sum.Present, "fresh state")

		_, err = f.svc.Get(old.ID)
		assert.Equal(t, core.ErrNotStarted, err)
		_, err = f.svc.Status(ctx, sum.ID)
		assert.NoError(t, err)
	})
}

func TestService_NotStarted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Status(ctx, "")
	assert.Equal(t, core.ErrNotStarted, err)
	_, err = f.svc.Scan(ctx, "unknown", "S1", SourceHTTP)
	assert.Equal(t, core.ErrNotStarted, err)
	_, err = f.svc.ScanImage(ctx, "unknown", []byte("one"))
	assert.Equal(t, core.ErrNotStarted, err)
	_, err = f.svc.Export(ctx, "unknown")
	assert.Equal(t, core.ErrNotStarted, err)
	_, err = f.svc.ScanRecords(ctx, "unknown", nil)
	assert.Equal(t, core.ErrNotStarted, err)
	assert.Equal(t, core.ErrNotStarted, f.svc.End(ctx, "unknown"))
	assert.Equal(t, core.ErrNotStarted, f.svc.StopCamera(ctx, "unknown"))
}

func TestService_ScanImage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sum := start(t, f.svc, "CS")

	tests := []struct {
		name    string
		image   string
		want    ImageScan
		wantErr error
	}{
		{name: "no image", image: "", wantErr: core.ErrInvalidInput},
		{name: "bad bytes", image: "garbage", wantErr: core.ErrDecodeFailure},
		{name: "no barcode", image: "nothing", want: ImageScan{Barcodes: 0, Results: []Result{}}},
		{
			name: "one barcode", image: "one",
			want: ImageScan{Barcodes: 1, Results: []Result{{Status: StatusMatched, ID: "S1", Name: "Ada", PCNo: null.IntFrom(1)}}},
		},
		{
			name: "every barcode of the frame, in decode order", image: "many",
			want: ImageScan{Barcodes: 3, Results: []Result{
				{Status: StatusAlreadyPresent, ID: "S1"},
				{Status: StatusMatched, ID: "S3", Name: "Cy", PCNo: null.IntFrom(2)},
				{Status: StatusNotFound, ID: "S9"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ScanImage(ctx, sum.ID, []byte(tt.image))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	recs, err := f.svc.ScanRecords(ctx, sum.ID, nil)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, StatusMatched, recs[0].Status)
	assert.Equal(t, SourceHTTP, recs[0].Source)
	assert.Equal(t, "Lab 1", recs[0].Lab)
}

func TestService_Scan_AuditFailureDoesNotFailScan(t *testing.T) {
	f := setup(t)
	sum := start(t, f.svc, "")
	f.repo.err = errors.New("db down")

	res, err := f.svc.Scan(context.Background(), sum.ID, "S2", SourceCLI)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, res.Status)
}

func TestService_Export(t *testing.T) {
	at := time.Date(2021, 3, 1, 8, 30, 15, 0, time.UTC)
	nowFunc = func() time.Time { return at }
	defer func() { nowFunc = time.Now }()

	f := setup(t)
	ctx := context.Background()
	sum := start(t, f.svc, "")
	_, err := f.svc.Scan(ctx, sum.ID, "S3", SourceHTTP)
	require.NoError(t, err)

	data, err := f.svc.Export(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), data)
	assert.Equal(t, "Attendance", f.sheets.sheetName)
	assert.Equal(t, []string{"ID_number", "Department", "Name", "PC_no", "Attendance", "Timestamp", "Availability"}, f.sheets.header)
	assert.Equal(t, [][]interface{}{
		{"S1", "CS", "Ada", "", "Absent", "", "Yes"},
		{"S2", "EE", "Bob", "", "Absent", "", "Yes"},
		{"S3", "CS", "Cy", 1, "Present", "2021-03-01 08:30:15", "Yes"},
	}, f.sheets.records)
}

func TestService_MailExport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sum := start(t, f.svc, "CS")
	_, _ = f.svc.Scan(ctx, sum.ID, "S1", SourceHTTP)

	assert.Equal(t, core.ErrInvalidInput, errors.Cause(f.svc.MailExport(ctx, sum.ID)))

	to := mail.Address{Name: "Admin", Address: "admin@test.cd"}
	require.NoError(t, f.svc.MailExport(ctx, sum.ID, to))
	require.Len(t, f.mails.sent, 1)

	msg := f.mails.sent[0]
	assert.Equal(t, []mail.Address{to}, msg.To)
	assert.Equal(t, "Attendance - Lab 1", msg.Subject)
	assert.Contains(t, msg.TextContent, "Attendance for Lab 1 (CS)")
	assert.Contains(t, msg.TextContent, "1 of 2 students present, 1 absent.")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, ExportFilename, msg.Attachments[0].Filename)
	assert.Equal(t, ExportContentType, msg.Attachments[0].ContentType)
}

func TestService_Camera(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sum := start(t, f.svc, "")

	t.Run("no url", func(t *testing.T) {
		_, err := f.svc.StartCamera(ctx, sum.ID, "")
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok, "got %v", err)
	})

	t.Run("cannot open", func(t *testing.T) {
		f.opener.err = errors.Wrap(core.ErrResourceUnavailable, "no such camera")
		defer func() { f.opener.err = nil }()
		_, err := f.svc.StartCamera(ctx, sum.ID, "http://cam.local/video")
		assert.Equal(t, core.ErrResourceUnavailable, errors.Cause(err))
		st, _ := f.svc.Status(ctx, sum.ID)
		assert.False(t, st.Camera.Running)
		assert.NotEmpty(t, st.Camera.Error)
	})

	t.Run("stalled source stops the worker", func(t *testing.T) {
		f.opener.cam = &fakeCamera{
			frames: []Frame{
				{Image: []byte("f1"), Payloads: []string{"S1", "S2"}},
				{Image: []byte("f2")},
				{Image: []byte("f3"), Payloads: []string{"S1", "S3", "S3"}},
			},
			err: errors.Wrap(core.ErrResourceUnavailable, "camera stalled"),
		}
		st, err := f.svc.StartCamera(ctx, sum.ID, "http://cam.local/video")
		require.NoError(t, err)
		assert.True(t, st.Running)

		require.Eventually(t, func() bool {
			st, _ := f.svc.Status(ctx, sum.ID)
			return !st.Camera.Running
		}, time.Second, 5*time.Millisecond)

		st2, _ := f.svc.Status(ctx, sum.ID)
		assert.Equal(t, "camera stalled: resource unavailable", st2.Camera.Error)
		assert.Equal(t, 3, st2.Present)
		assert.True(t, f.opener.cam.closed.Load())

		sess, _ := f.svc.Get(sum.ID)
		frame, seq := sess.LatestFrame()
		assert.Equal(t, uint64(3), seq)
		assert.Equal(t, []byte("f3"), frame.Image)

		recs, _ := f.svc.ScanRecords(ctx, sum.ID, nil)
		assert.Len(t, recs, 4) // S1, S2, S1 (already present), S3
		for _, r := range recs {
			assert.Equal(t, SourceCamera, r.Source)
		}
	})

	t.Run("stop", func(t *testing.T) {
		f.opener.cam = &fakeCamera{}
		_, err := f.svc.StartCamera(ctx, sum.ID, "http://cam.local/video")
		require.NoError(t, err)

		require.NoError(t, f.svc.StopCamera(ctx, sum.ID))
		st, _ := f.svc.Status(ctx, sum.ID)
		assert.False(t, st.Camera.Running)
		assert.Empty(t, st.Camera.Error)
		assert.True(t, f.opener.cam.closed.Load())
	})
}

func TestService_CameraSupersededWhileOpening(t *testing.T) {
	ctx := context.Background()
	const url = "http://cam.local/video"

	t.Run("session ended", func(t *testing.T) {
		f := setup(t)
		sum := start(t, f.svc, "")
		f.opener.cam = &fakeCamera{}
		f.opener.onOpen = func() { require.NoError(t, f.svc.End(ctx, sum.ID)) }

		_, err := f.svc.StartCamera(ctx, sum.ID, url)
		assert.Equal(t, core.ErrNotStarted, errors.Cause(err))
		assert.True(t, f.opener.cam.closed.Load())
	})

	t.Run("session replaced", func(t *testing.T) {
		f := setup(t)
		sum := start(t, f.svc, "")
		f.opener.cam = &fakeCamera{}
		f.opener.onOpen = func() { start(t, f.svc, "", sum.ID) }

		_, err := f.svc.StartCamera(ctx, sum.ID, url)
		assert.Equal(t, core.ErrNotStarted, errors.Cause(err))
		assert.True(t, f.opener.cam.closed.Load())
	})

	t.Run("camera restarted", func(t *testing.T) {
		f := setup(t)
		sum := start(t, f.svc, "")
		first, second := &fakeCamera{}, &fakeCamera{}
		f.opener.cam = first
		f.opener.onOpen = func() {
			f.opener.cam, f.opener.onOpen = second, nil
			st, err := f.svc.StartCamera(ctx, sum.ID, url)
			require.NoError(t, err)
			assert.True(t, st.Running)
		}

		_, err := f.svc.StartCamera(ctx, sum.ID, url)
		assert.Equal(t, core.ErrNotStarted, errors.Cause(err))
		assert.True(t, first.closed.Load())

		st, _ := f.svc.Status(ctx, sum.ID)
		assert.True(t, st.Camera.Running)
		assert.False(t, second.closed.Load())

		require.NoError(t, f.svc.StopCamera(ctx, sum.ID))
		assert.True(t, second.closed.Load())
		st, _ = f.svc.Status(ctx, sum.ID)
		assert.False(t, st.Camera.Running)
	})
}

func TestService_Reap(t *testing.T) {
	now := time.Now()
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	f := setup(t)
	ctx := context.Background()
	idle := start(t, f.svc, "")
	busy := start(t, f.svc, "")

	now = now.Add(2 * time.Hour) // TTL is 1h in tests
	_, err := f.svc.Scan(ctx, busy.ID, "S1", SourceHTTP)
	require.NoError(t, err)

	assert.Equal(t, 1, f.svc.Reap(ctx))
	_, err = f.svc.Get(idle.ID)
	assert.Equal(t, core.ErrNotStarted, err)
	_, err = f.svc.Get(busy.ID)
	assert.NoError(t, err)
}
