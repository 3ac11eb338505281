package camerasvc

import (
	"context"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

const maxFrameSize = 8 << 20

var (
	errStalled     = errors.Wrap(core.ErrResourceUnavailable, "camera stalled")
	errStreamEnded = errors.Wrap(core.ErrResourceUnavailable, "camera stream ended")
)

// Opener opens network cameras: MJPEG streams (multipart/x-mixed-replace) or snapshot
// endpoints serving a single JPEG/PNG per request, as phone "IP webcam" apps do.
type Opener struct {
	client        *http.Client
	decoder       session.BarcodeDecoder
	readTimeout   time.Duration
	frameInterval time.Duration
}

var _ session.CameraOpener = (*Opener)(nil)

func NewOpener(conf *core.Config, decoder session.BarcodeDecoder, client ...*http.Client) *Opener {
	c := http.DefaultClient
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	return &Opener{
		client:        c,
		decoder:       decoder,
		readTimeout:   conf.Camera.ReadTimeout,
		frameInterval: conf.Camera.FrameInterval,
	}
}

func (o *Opener) Open(ctx context.Context, url string) (session.Camera, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	res, err := o.get(streamCtx, url)
	if err != nil {
		cancel()
		return nil, err
	}

	ct, params, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	switch {
	case err == nil && strings.HasPrefix(ct, "multipart/") && params["boundary"] != "":
		return &mjpegCamera{
			opener: o,
			cancel: cancel,
			body:   res.Body,
			parts:  multipart.NewReader(res.Body, params["boundary"]),
		}, nil
	case err == nil && strings.HasPrefix(ct, "image/"):
		_ = res.Body.Close()
		cancel()
		return &snapshotCamera{opener: o, url: url}, nil
	default:
		_ = res.Body.Close()
		cancel()
		return nil, errors.Wrapf(core.ErrResourceUnavailable, "unsupported camera content type %q", res.Header.Get("Content-Type"))
	}
}

// get requests url; the response headers must arrive within the read timeout.
func (o *Opener) get(ctx context.Context, url string) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(o.readTimeout, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, errors.Wrapf(core.ErrResourceUnavailable, "invalid camera URL: %v", err)
	}
	res, err := o.client.Do(req)
	if !timer.Stop() || err != nil {
		cancel()
		if err == nil {
			_ = res.Body.Close()
			err = errStalled
		}
		return nil, errors.Wrapf(core.ErrResourceUnavailable, "connecting to camera: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		cancel()
		return nil, errors.Wrapf(core.ErrResourceUnavailable, "camera responded %s", res.Status)
	}

	// the response body lives on ctx: release it with the body
	res.Body = &cancelBody{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel func()
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// frameDecoder decodes at most one frame per frame interval; frames in between are passed on as is.
type frameDecoder struct {
	decoder  session.BarcodeDecoder
	interval time.Duration
	last     time.Time
}

func (d *frameDecoder) frame(data []byte, ct string) session.Frame {
	now := time.Now()
	f := session.Frame{Image: data, ContentType: ct, CapturedAt: now}
	if now.Sub(d.last) < d.interval {
		return f
	}
	d.last = now
	if payloads, err := d.decoder.Decode(data); err == nil {
		f.Payloads = payloads
	}
	return f
}

func send(ctx context.Context, frames chan<- session.Frame, f session.Frame) error {
	select {
	case frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mjpegCamera struct {
	opener *Opener
	cancel func()
	body   io.Closer
	parts  *multipart.Reader
}

type part struct {
	data []byte
	ct   string
	err  error
}

func (c *mjpegCamera) Run(ctx context.Context, frames chan<- session.Frame) error {
	dec := frameDecoder{decoder: c.opener.decoder, interval: c.opener.frameInterval}
	for {
		next := make(chan part, 1)
		go func() {
			p, err := c.parts.NextPart()
			if err != nil {
				next <- part{err: err}
				return
			}
			data, err := readPart(p)
			next <- part{data: data, ct: p.Header.Get("Content-Type"), err: err}
		}()

		timer := time.NewTimer(c.opener.readTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.cancel()
			return ctx.Err()
		case <-timer.C:
			c.cancel()
			return errStalled
		case p := <-next:
			timer.Stop()
			if p.err == io.EOF {
				return errStreamEnded
			}
			if p.err != nil {
				return errors.Wrapf(core.ErrResourceUnavailable, "reading frame: %v", p.err)
			}
			if len(p.data) == 0 {
				continue
			}
			if err := send(ctx, frames, dec.frame(p.data, p.ct)); err != nil {
				return err
			}
		}
	}
}

// readPart reads a frame. With a Content-Length the frame is complete without waiting
// for the next boundary, which a live camera only sends with the next frame.
func readPart(p *multipart.Part) ([]byte, error) {
	if n, err := strconv.Atoi(p.Header.Get("Content-Length")); err == nil && n >= 0 && n <= maxFrameSize {
		data := make([]byte, n)
		_, err = io.ReadFull(p, data)
		return data, err
	}
	return ioutil.ReadAll(io.LimitReader(p, maxFrameSize))
}

func (c *mjpegCamera) Close() error {
	c.cancel()
	return c.body.Close()
}

type snapshotCamera struct {
	opener *Opener
	url    string
}

func (c *snapshotCamera) Run(ctx context.Context, frames chan<- session.Frame) error {
	dec := frameDecoder{decoder: c.opener.decoder}
	ticker := time.NewTicker(c.opener.frameInterval)
	defer ticker.Stop()

	for {
		res, err := c.opener.get(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		data, err := c.read(res)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err = send(ctx, frames, dec.frame(data, res.Header.Get("Content-Type"))); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// read reads and closes the snapshot body, which must arrive within the read timeout.
func (c *snapshotCamera) read(res *http.Response) ([]byte, error) {
	defer func() { _ = res.Body.Close() }()

	var stalled atomic.Bool
	timer := time.AfterFunc(c.opener.readTimeout, func() {
		stalled.Store(true)
		_ = res.Body.Close()
	})
	data, err := ioutil.ReadAll(io.LimitReader(res.Body, maxFrameSize))
	timer.Stop()
	if stalled.Load() {
		return nil, errStalled
	}
	if err != nil {
		return nil, errors.Wrapf(core.ErrResourceUnavailable, "reading snapshot: %v", err)
	}
	return data, nil
}

func (c *snapshotCamera) Close() error { return nil }
