package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded bitmap plus the encoded bytes handed to the vision model.
// Data keeps the original bytes for formats every model accepts and is a PNG
// re-encode of Bitmap otherwise.
type Image struct {
	Bitmap   *image.NRGBA
	Format   string
	MIMEType string
	Data     []byte
}

func (img *Image) Bounds() image.Rectangle {
	return img.Bitmap.Bounds()
}

var passthroughFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// NormalizeImage decodes in into an *Image. An *Image input is returned as is.
func (n *Normalizer) NormalizeImage(in Input) (*Image, error) {
	switch v := in.(type) {
	case *Image:
		if v == nil || v.Bitmap == nil {
			return nil, unsupported("image", in)
		}
		return v, nil
	case Path:
		if v.isDataURI() {
			data, err := decodeDataURI(string(v))
			if err != nil {
				return nil, decodeError("image", in, err)
			}
			return decodeImageInput(in, data, n.maxImagePixels)
		}
		data, err := os.ReadFile(string(v))
		if err != nil {
			return nil, decodeError("image", in, err)
		}
		return decodeImageInput(in, data, n.maxImagePixels)
	case Bytes:
		return decodeImageInput(in, []byte(v), n.maxImagePixels)
	case Stream:
		if v.Reader == nil {
			return nil, decodeError("image", in, errors.New("nil reader"))
		}
		data, err := io.ReadAll(v.Reader)
		if err != nil {
			return nil, decodeError("image", in, err)
		}
		return decodeImageInput(in, data, n.maxImagePixels)
	default:
		return nil, unsupported("image", in)
	}
}

func decodeImageInput(in Input, data []byte, maxPixels int) (*Image, error) {
	img, err := decodeImage(data, maxPixels)
	if err != nil {
		return nil, decodeError("image", in, err)
	}
	return img, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	_, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, errors.New("data uri has no payload")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, nil
}

func decodeImage(data []byte, maxPixels int) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, maxPixels)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	out := &Image{Bitmap: toNRGBA(src), Format: format}
	if mimeType, ok := passthroughFormats[format]; ok {
		out.MIMEType = mimeType
		out.Data = data
		return out, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out.Bitmap); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	out.MIMEType = "image/png"
	out.Data = buf.Bytes()
	return out, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	if nrgba, ok := src.(*image.NRGBA); ok {
		return nrgba
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
