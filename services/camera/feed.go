package camerasvc

import (
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"github.com/pkg/errors"
)

// FeedBoundary separates the frames of a feed.
const FeedBoundary = "frame"

// FeedWriter writes frames as an MJPEG stream (multipart/x-mixed-replace).
type FeedWriter struct {
	mw *multipart.Writer
}

func NewFeedWriter(w io.Writer) *FeedWriter {
	mw := multipart.NewWriter(w)
	_ = mw.SetBoundary(FeedBoundary)
	return &FeedWriter{mw: mw}
}

func (fw *FeedWriter) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + FeedBoundary
}

func (fw *FeedWriter) WriteFrame(image []byte, contentType string) error {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w, err := fw.mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {contentType},
		"Content-Length": {strconv.Itoa(len(image))},
	})
	if err != nil {
		return errors.Wrap(err, "creating frame part")
	}
	_, err = w.Write(image)
	return errors.Wrap(err, "writing frame")
}

func (fw *FeedWriter) Close() error {
	return fw.mw.Close()
}
