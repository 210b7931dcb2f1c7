package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ImageEncoder", func() {
	var (
		tmpDir  string
		ref     string
		ctx     context.Context
		encoder *ImageEncoder
		payload Payload
		err     error
	)

	writeFile := func(name string, data []byte) string {
		path := filepath.Join(tmpDir, name)
		Expect(os.WriteFile(path, data, 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		ctx = context.Background()
		encoder = NewImageEncoder()
	})

	JustBeforeEach(func() {
		payload, err = encoder.Encode(ctx, ref)
	})

	When("the image is a PNG", func() {
		BeforeEach(func() {
			img := image.NewRGBA(image.Rect(0, 0, 4, 4))
			img.Set(1, 1, color.RGBA{R: 255, A: 255})
			var buf bytes.Buffer
			Expect(png.Encode(&buf, img)).To(Succeed())
			ref = writeFile("receipt.png", buf.Bytes())
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should convert it to JPEG", func() {
			Expect(payload.MIMEType).To(Equal("image/jpeg"))
			Expect(payload.Data[:3]).To(Equal([]byte{0xFF, 0xD8, 0xFF}))
		})

		It("should produce a JPEG data URI", func() {
			uri := payload.DataURI()
			Expect(uri).To(HavePrefix("data:image/jpeg;base64,"))
			decoded, decodeErr := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(payload.Data))
		})
	})

	When("the image is already a JPEG", func() {
		var data []byte

		BeforeEach(func() {
			data = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("rest of jpeg")...)
			ref = writeFile("receipt.jpg", data)
		})

		It("should pass the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(payload.Data).To(Equal(data))
		})
	})

	When("the bytes are in an unrecognised format", func() {
		BeforeEach(func() {
			ref = writeFile("receipt.bin", []byte("fake image data"))
		})

		It("should pass the bytes through tagged as JPEG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(payload.MIMEType).To(Equal("image/jpeg"))
			Expect(string(payload.Data)).To(Equal("fake image data"))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			ref = filepath.Join(tmpDir, "missing.jpg")
		})

		It("returns an EncodingError", func() {
			var encErr *EncodingError
			Expect(errors.As(err, &encErr)).To(BeTrue())
			Expect(encErr.Ref).To(Equal(ref))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("failed to process image"))
		})
	})

	When("a PNG header hides garbage", func() {
		BeforeEach(func() {
			ref = writeFile("broken.png", []byte("\x89PNG\r\n\x1a\ngarbage"))
		})

		It("returns an EncodingError", func() {
			var encErr *EncodingError
			Expect(errors.As(err, &encErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("decoding image"))
		})
	})

	When("the context is already cancelled", func() {
		BeforeEach(func() {
			ref = writeFile("receipt.bin", []byte("data"))
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = cancelled
		})

		It("returns an EncodingError", func() {
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})
})

var _ = Describe("detectFormat", func() {
	DescribeTable("magic bytes",
		func(data []byte, expected imageFormat) {
			Expect(detectFormat(data)).To(Equal(expected))
		},
		Entry("jpeg", []byte{0xFF, 0xD8, 0xFF, 0xDB}, formatJPEG),
		Entry("png", []byte("\x89PNG\r\n\x1a\n...."), formatPNG),
		Entry("gif", []byte("GIF89a...."), formatGIF),
		Entry("pdf", []byte("%PDF-1.4"), formatPDF),
		Entry("heic", []byte("\x00\x00\x00\x18ftypheic...."), formatHEIC),
		Entry("unknown", []byte("hello"), formatUnknown),
	)
})
