package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/xerrors"
)

// Decode turns raw screenshot bytes into an in-memory image. PNG and
// JPEG inputs are recognized. Decode failures abort the comparison
// pipeline before any diffing starts.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("decode image: %w", err)
	}

	return img, nil
}

// Encoder serializes an image for artifact storage. Implementations own
// the file format so nothing else in the pipeline has to.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	Ext() string
}

// EncoderForFormat maps a format flag value to its encoder.
func EncoderForFormat(format string, quality int) (Encoder, error) {
	switch format {
	case "png":
		return NewPNGEncoder(), nil
	case "jpeg":
		return NewJPEGEncoder(quality), nil
	default:
		return nil, xerrors.Errorf("unknown image format: %s", format)
	}
}

type PNGEncoder struct{}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{}
}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return nil, xerrors.Errorf("encode png: %w", err)
	}

	return buffer.Bytes(), nil
}

func (e *PNGEncoder) Ext() string {
	return "png"
}

type JPEGEncoder struct {
	quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	return &JPEGEncoder{
		quality: quality,
	}
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buffer bytes.Buffer
	if err := jpeg.Encode(&buffer, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, xerrors.Errorf("encode jpeg: %w", err)
	}

	return buffer.Bytes(), nil
}

func (e *JPEGEncoder) Ext() string {
	return "jpeg"
}
