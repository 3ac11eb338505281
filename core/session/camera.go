package session

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
)

// StartCamera opens the video source at url and starts capturing from it.
// A camera already running for the session is stopped first.
// Frames are decoded by the capture worker; their payloads are applied by a single consumer.
func (svc *service) StartCamera(ctx context.Context, id, url string) (CameraStatus, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return CameraStatus{}, err
	}
	if url == "" {
		url = svc.conf.Camera.URL
	}
	if url == "" {
		return CameraStatus{}, core.NewValidationError(
			errors.New("no camera configured"),
			core.FieldError{Field: "url", Error: "this field is required"},
		)
	}

	svc.stopCamera(ctx, sess)

	sess.mu.Lock()
	sess.camGen++
	gen := sess.camGen
	sess.mu.Unlock()

	cam, err := svc.cameras.Open(ctx, url)
	if err != nil {
		sess.mu.Lock()
		if sess.camGen == gen {
			sess.camStatus = CameraStatus{URL: url, Error: err.Error()}
		}
		sess.mu.Unlock()
		return CameraStatus{}, errors.Wrap(err, "opening camera")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	status, ok := svc.claimCamera(sess, gen, url, cancel, done)
	if !ok {
		cancel()
		if cErr := cam.Close(); cErr != nil {
			svc.logger.Warn(fmt.Sprintf("closing camera: %v", cErr), sess.Info())
		}
		return CameraStatus{}, errors.Wrap(core.ErrNotStarted, "camera superseded while opening")
	}

	go svc.capture(runCtx, sess, cam, done)

	svc.logger.Info(fmt.Sprintf("camera started: %s", url), sess.Info())
	return status, nil
}

// claimCamera installs a capture worker on sess if sess is still registered and the
// reservation gen is still current. Stopping the camera of sess while its source
// was opening voids the reservation.
func (svc *service) claimCamera(sess *Session, gen uint64, url string, cancel func(), done chan struct{}) (CameraStatus, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if svc.sessions[sess.ID] != sess || sess.camGen != gen {
		return CameraStatus{}, false
	}
	sess.camCancel = cancel
	sess.camDone = done
	sess.camStatus = CameraStatus{Running: true, URL: url}
	return sess.camStatus, true
}

func (svc *service) StopCamera(ctx context.Context, id string) error {
	sess, err := svc.Get(id)
	if err != nil {
		return err
	}
	svc.stopCamera(ctx, sess)
	return nil
}

// stopCamera cancels the capture worker of sess, if any, and waits for it to be done (or ctx to be).
func (svc *service) stopCamera(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	cancel, done := sess.camCancel, sess.camDone
	sess.camCancel, sess.camDone = nil, nil
	sess.camStatus.Running = false
	sess.camGen++ // voids a reservation still opening its source
	sess.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// capture runs cam until it fails or runCtx is cancelled. A failed source is not retried.
func (svc *service) capture(runCtx context.Context, sess *Session, cam Camera, done chan struct{}) {
	defer close(done)

	frames := make(chan Frame, 4)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for f := range frames {
			sess.setFrame(f)
			if len(f.Payloads) > 0 {
				svc.scanAll(context.Background(), sess, f.Payloads, SourceCamera)
			}
		}
	}()

	err := cam.Run(runCtx, frames)
	close(frames)
	<-consumed
	if cErr := cam.Close(); cErr != nil {
		svc.logger.Warn(fmt.Sprintf("closing camera: %v", cErr), sess.Info())
	}

	stopped := runCtx.Err() != nil
	sess.mu.Lock()
	if sess.camDone == done { // not replaced by a newer worker
		sess.camCancel, sess.camDone = nil, nil
		sess.camStatus.Running = false
		if err != nil && !stopped {
			sess.camStatus.Error = err.Error()
		}
	}
	sess.mu.Unlock()

	if err != nil && !stopped {
		svc.logger.Error(fmt.Sprintf("camera stopped: %v", err), errors.Wrap(err, "capturing frames"), sess.Info())
	}
}
