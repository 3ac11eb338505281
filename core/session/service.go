package session

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"sync"
	texttmpl "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
)

var exportMailTmpl = texttmpl.Must(texttmpl.New("export").Parse(
	`Attendance for {{.Lab}}{{if .Department}} ({{.Department}}){{end}}, started {{.StartedAt.Format "2006-01-02 15:04"}}.

{{.Present}} of {{.Total}} students present, {{.Absent}} absent.
The full sheet is attached.
`))

type Service interface {
	// Start ingests a roster file and opens a new session, discarding the session it replaces.
	Start(ctx context.Context, params StartParams) (Summary, error)
	Get(id string) (*Session, error)
	Status(ctx context.Context, id string) (Summary, error)
	Scan(ctx context.Context, id, payload string, src Source) (Result, error)
	ScanImage(ctx context.Context, id string, data []byte) (ImageScan, error)
	Export(ctx context.Context, id string) ([]byte, error)
	MailExport(ctx context.Context, id string, to ...mail.Address) error
	ScanRecords(ctx context.Context, id string, ordering []core.DBOrdering) ([]ScanRecord, error)
	StartCamera(ctx context.Context, id, url string) (CameraStatus, error)
	StopCamera(ctx context.Context, id string) error
	End(ctx context.Context, id string) error
	// Reap ends the sessions idle for longer than the session TTL and returns how many.
	Reap(ctx context.Context) int
	// Close ends every session.
	Close()
}

type Deps struct {
	Conf    *core.Config
	Logger  core.Logger
	Repo    Repository
	Sheets  SheetCodec
	Decoder BarcodeDecoder
	Cameras CameraOpener
	MailSvc core.EmailService
}

type service struct {
	conf    *core.Config
	logger  core.Logger
	repo    Repository
	sheets  SheetCodec
	decoder BarcodeDecoder
	cameras CameraOpener
	mailSvc core.EmailService

	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Service = (*service)(nil)

func NewService(deps Deps) Service {
	return &service{
		conf:     deps.Conf,
		logger:   deps.Logger,
		repo:     deps.Repo,
		sheets:   deps.Sheets,
		decoder:  deps.Decoder,
		cameras:  deps.Cameras,
		mailSvc:  deps.MailSvc,
		sessions: make(map[string]*Session),
	}
}

func (svc *service) Start(ctx context.Context, params StartParams) (Summary, error) {
	if params.File == nil {
		return Summary{}, core.NewValidationError(
			errors.New("no file uploaded"),
			core.FieldError{Field: "masterfile", Error: "no file uploaded"},
		)
	}
	table, err := svc.sheets.Read(params.File, params.Filename)
	if err != nil {
		return Summary{}, errors.Wrap(err, "reading roster file")
	}
	ros, err := roster.New(table, params.Department)
	if err != nil {
		return Summary{}, err
	}

	sess := New(ros, core.CleanString(params.Lab), svc.conf.Session.Capacity)

	svc.mu.Lock()
	old := svc.sessions[params.Replaces]
	delete(svc.sessions, params.Replaces)
	svc.sessions[sess.ID] = sess
	svc.mu.Unlock()

	if old != nil {
		svc.stopCamera(ctx, old)
		svc.logger.Info(fmt.Sprintf("session %s replaced by %s", old.ID, sess.ID), old.Info())
	}
	svc.logger.Info(fmt.Sprintf("session started: %d students", ros.Len()), sess.Info())
	return sess.Summary(), nil
}

func (svc *service) Get(id string) (*Session, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if sess, ok := svc.sessions[id]; ok {
		return sess, nil
	}
	return nil, core.ErrNotStarted
}

func (svc *service) Status(_ context.Context, id string) (Summary, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return Summary{}, err
	}
	sess.touch()
	return sess.Summary(), nil
}

func (svc *service) Scan(ctx context.Context, id, payload string, src Source) (Result, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return Result{}, err
	}
	return svc.scan(ctx, sess, payload, src)
}

func (svc *service) ScanImage(ctx context.Context, id string, data []byte) (ImageScan, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return ImageScan{}, err
	}
	if len(data) == 0 {
		return ImageScan{}, errors.Wrap(core.ErrInvalidInput, "no image")
	}

	// decode outside of the session lock
	payloads, err := svc.decoder.Decode(data)
	if err != nil {
		return ImageScan{}, errors.Wrap(err, "decoding barcodes")
	}
	return svc.scanAll(ctx, sess, payloads, SourceHTTP), nil
}

// scanAll processes every distinct payload of one image, in decode order.
func (svc *service) scanAll(ctx context.Context, sess *Session, payloads []string, src Source) ImageScan {
	payloads = uniquePayloads(payloads)
	out := ImageScan{Barcodes: len(payloads), Results: make([]Result, 0, len(payloads))}
	for _, p := range payloads {
		res, err := svc.scan(ctx, sess, p, src)
		if err != nil {
			continue // empty payload
		}
		out.Results = append(out.Results, res)
	}
	return out
}

func (svc *service) scan(ctx context.Context, sess *Session, payload string, src Source) (Result, error) {
	res, err := sess.ProcessScan(payload)
	if err != nil {
		return Result{}, err
	}

	info := sess.Info()
	switch res.Status {
	case StatusMatched:
		if res.PCNo.Valid {
			svc.logger.Info(fmt.Sprintf("match: %s (%s) assigned PC %d", res.ID, res.Name, res.PCNo.Int), info)
		} else {
			svc.logger.Info(fmt.Sprintf("match: %s (%s), lab is full: no PC assigned", res.ID, res.Name), info)
		}
	case StatusAlreadyPresent:
		svc.logger.Debug(fmt.Sprintf("duplicate: %s already marked present", res.ID), info)
	case StatusNotFound:
		svc.logger.Warn(fmt.Sprintf("not found: %s is not on the roster", res.ID), info)
	}

	rec := ScanRecord{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Payload:   res.ID,
		Status:    res.Status,
		Name:      res.Name,
		PCNo:      res.PCNo,
		Source:    src,
		Lab:       info.Lab,
		ScannedAt: nowFunc().UTC(),
	}
	if err = svc.repo.CreateScanRecord(ctx, rec); err != nil {
		svc.logger.Error(fmt.Sprintf("recording scan: %v", err), errors.Wrap(err, "recording scan"), info)
	}
	return res, nil
}

func (svc *service) Export(_ context.Context, id string) ([]byte, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	header, records := sess.Snapshot(svc.conf.Session.TimestampLayout)

	var buf bytes.Buffer
	if err = svc.sheets.Write(&buf, ExportSheetName, header, records); err != nil {
		return nil, errors.Wrap(err, "writing attendance sheet")
	}
	return buf.Bytes(), nil
}

func (svc *service) MailExport(ctx context.Context, id string, to ...mail.Address) error {
	if len(to) == 0 {
		return errors.Wrap(core.ErrInvalidInput, "no recipients")
	}
	data, err := svc.Export(ctx, id)
	if err != nil {
		return err
	}
	sess, err := svc.Get(id)
	if err != nil {
		return err
	}
	sum := sess.Summary()

	msg := &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Attendance - %s", sum.Lab),
		Template:     exportMailTmpl,
		TemplateData: sum,
	}
	if err = msg.Attach(bytes.NewReader(data), ExportFilename, ExportContentType); err != nil {
		return errors.Wrap(err, "attaching attendance sheet")
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

func (svc *service) ScanRecords(ctx context.Context, id string, ordering []core.DBOrdering) ([]ScanRecord, error) {
	if _, err := svc.Get(id); err != nil {
		return nil, err
	}
	ordering = core.CleanOrderings(ordering, ScanRecordOrderings...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "scanned_at", Ascending: true}}
	}
	recs, err := svc.repo.QueryScanRecords(ctx, id, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying scan records")
	}
	return recs, nil
}

func (svc *service) End(ctx context.Context, id string) error {
	svc.mu.Lock()
	sess, ok := svc.sessions[id]
	delete(svc.sessions, id)
	svc.mu.Unlock()
	if !ok {
		return core.ErrNotStarted
	}

	svc.stopCamera(ctx, sess)
	svc.logger.Info("session ended", sess.Info())
	return nil
}

func (svc *service) Reap(ctx context.Context) int {
	deadline := nowFunc().Add(-svc.conf.Session.TTL)

	svc.mu.RLock()
	expired := make([]string, 0)
	for id, sess := range svc.sessions {
		if sess.idleSince().Before(deadline) {
			expired = append(expired, id)
		}
	}
	svc.mu.RUnlock()

	var n int
	for _, id := range expired {
		if err := svc.End(ctx, id); err == nil {
			n++
		}
	}
	return n
}

func (svc *service) Close() {
	svc.mu.RLock()
	ids := make([]string, 0, len(svc.sessions))
	for id := range svc.sessions {
		ids = append(ids, id)
	}
	svc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range ids {
		_ = svc.End(ctx, id)
	}
}

func uniquePayloads(payloads []string) []string {
	seen := make(map[string]struct{}, len(payloads))
	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		p = core.CleanString(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
