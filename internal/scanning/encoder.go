package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"os"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const jpegMIMEType = "image/jpeg"

// Payload is an encoded image ready for inline transport
type Payload struct {
	MIMEType string
	Data     []byte
}

// DataURI returns the payload as a base64 data URI
func (p Payload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data))
}

// Encoder turns a local image reference into a transportable payload
type Encoder interface {
	Encode(ctx context.Context, ref string) (Payload, error)
}

// ImageEncoder reads images from the local filesystem and normalizes them to JPEG
type ImageEncoder struct {
	quality int
}

// NewImageEncoder creates a new ImageEncoder
func NewImageEncoder() *ImageEncoder {
	return &ImageEncoder{quality: 85}
}

// Encode reads the image behind ref and returns a JPEG payload.
// JPEG input and bytes in an unrecognised format are passed through unchanged.
func (e *ImageEncoder) Encode(ctx context.Context, ref string) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, &EncodingError{Ref: ref, Err: err}
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return Payload{}, &EncodingError{Ref: ref, Err: fmt.Errorf("reading image: %w", err)}
	}

	jpegData, err := e.toJPEG(data)
	if err != nil {
		return Payload{}, &EncodingError{Ref: ref, Err: err}
	}

	return Payload{MIMEType: jpegMIMEType, Data: jpegData}, nil
}

type imageFormat int

const (
	formatUnknown imageFormat = iota
	formatJPEG
	formatPNG
	formatGIF
	formatHEIC
	formatPDF
)

// detectFormat sniffs the magic bytes of an image
func detectFormat(data []byte) imageFormat {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return formatJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return formatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return formatGIF
	case bytes.HasPrefix(data, []byte("%PDF")):
		return formatPDF
	case isHEICFormat(data):
		return formatHEIC
	}
	return formatUnknown
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func (e *ImageEncoder) toJPEG(data []byte) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch detectFormat(data) {
	case formatJPEG, formatUnknown:
		return data, nil
	case formatHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	case formatPDF:
		img, err = pdfFirstPage(data)
		if err != nil {
			return nil, err
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfFirstPage renders the first page of a PDF (most receipts are single page)
func pdfFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
