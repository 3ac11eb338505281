package barcodesvc

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

const (
	maxDepth      = 4
	minRegionSize = 24 // px
)

// Symbol is a barcode found in an image. Points are in image coordinates.
type Symbol struct {
	Text   string
	Format string
	Points []image.Point
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Decoder finds QR codes and common 1D barcodes (Code 128, Code 39, EAN-13) in images.
// It looks for several symbols per image by searching the regions around each symbol it finds.
type Decoder struct {
	newReaders func() []gozxing.Reader
}

var _ session.BarcodeDecoder = (*Decoder)(nil)

func NewDecoder() *Decoder {
	return &Decoder{
		// readers keep state between calls: build a fresh set per decode
		newReaders: func() []gozxing.Reader {
			return []gozxing.Reader{
				qrcode.NewQRCodeReader(),
				oned.NewCode128Reader(),
				oned.NewCode39Reader(),
				oned.NewEAN13Reader(),
			}
		},
	}
}

// Decode decodes an encoded image and returns the distinct payloads found, in decode order.
func (d *Decoder) Decode(data []byte) ([]string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(core.ErrDecodeFailure, err.Error())
	}
	symbols := d.DecodeImage(img)
	payloads := make([]string, 0, len(symbols))
	for _, s := range symbols {
		payloads = append(payloads, s.Text)
	}
	return payloads, nil
}

// DecodeImage returns the distinct symbols found in img. None is not an error.
func (d *Decoder) DecodeImage(img image.Image) []Symbol {
	found := make([]Symbol, 0)
	seen := make(map[string]struct{})
	d.search(img, d.newReaders(), 0, seen, &found)
	return found
}

func (d *Decoder) search(img image.Image, readers []gozxing.Reader, depth int, seen map[string]struct{}, found *[]Symbol) {
	if depth > maxDepth {
		return
	}
	b := img.Bounds()
	if b.Dx() < minRegionSize || b.Dy() < minRegionSize {
		return
	}

	sym, ok := decodeOne(img, readers)
	if !ok {
		return
	}
	if _, dup := seen[sym.Text]; !dup {
		seen[sym.Text] = struct{}{}
		*found = append(*found, sym)
	}

	sub, ok := img.(subImager)
	if !ok || len(sym.Points) == 0 {
		return
	}

	// bounding box of the symbol, then search left, right, above & below it
	minX, minY, maxX, maxY := math.MaxInt32, math.MaxInt32, math.MinInt32, math.MinInt32
	for _, p := range sym.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	regions := []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, minX, b.Max.Y),
		image.Rect(maxX, b.Min.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, minY),
		image.Rect(b.Min.X, maxY, b.Max.X, b.Max.Y),
	}
	for _, r := range regions {
		r = r.Intersect(b)
		if r.Empty() || r.Eq(b) {
			continue
		}
		d.search(sub.SubImage(r), readers, depth+1, seen, found)
	}
}

// decodeOne returns the first symbol any reader finds in img.
func decodeOne(img image.Image, readers []gozxing.Reader) (Symbol, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, false
	}
	origin := img.Bounds().Min
	for _, r := range readers {
		res, err := r.Decode(bmp, nil)
		r.Reset()
		if err != nil || res == nil {
			continue // not found, checksum or format errors all mean "no symbol of this kind"
		}
		sym := Symbol{Text: res.GetText(), Format: res.GetBarcodeFormat().String()}
		for _, p := range res.GetResultPoints() {
			sym.Points = append(sym.Points, image.Pt(origin.X+int(p.GetX()), origin.Y+int(p.GetY())))
		}
		if strings.TrimSpace(sym.Text) == "" {
			continue
		}
		return sym, true
	}
	return Symbol{}, false
}

// DecodeDataURL returns the bytes of a base64 data URL ("data:image/jpeg;base64,...") or of bare base64.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(core.ErrInvalidInput, "no image")
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.Wrap(core.ErrDecodeFailure, "malformed data URL")
		}
		if !strings.HasSuffix(s[:i], ";base64") {
			return nil, errors.Wrap(core.ErrDecodeFailure, "data URL is not base64 encoded")
		}
		s = s[i+1:]
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, errors.Wrap(core.ErrDecodeFailure, "invalid base64 image data")
}
