package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
)

// maxCaptureSize matches the upload limit for high-resolution phone photos
const maxCaptureSize = 50 << 20

// ImageRef is an opaque handle to a locally stored image
type ImageRef string

// ErrPermissionDenied is returned when the user refuses access to the camera or photo library
var ErrPermissionDenied = errors.New("permission denied")

// Permissions asks the user for access to image sources
type Permissions interface {
	RequestCamera(ctx context.Context) (bool, error)
	RequestMediaLibrary(ctx context.Context) (bool, error)
}

// Picker lets the user choose or capture one image.
// ok is false when the user cancelled.
type Picker interface {
	Pick(ctx context.Context) (ref ImageRef, ok bool, err error)
}

// Adapter wraps the camera and gallery pickers behind their permission checks
type Adapter struct {
	permissions Permissions
	camera      Picker
	gallery     Picker
}

// NewAdapter creates a new Adapter. Either picker may be nil when the source is unavailable.
func NewAdapter(permissions Permissions, camera Picker, gallery Picker) *Adapter {
	return &Adapter{
		permissions: permissions,
		camera:      camera,
		gallery:     gallery,
	}
}

// AcquireFromCamera captures a new photo
func (a *Adapter) AcquireFromCamera(ctx context.Context) (ImageRef, bool, error) {
	granted, err := a.permissions.RequestCamera(ctx)
	if err != nil {
		return "", false, fmt.Errorf("requesting camera permission: %w", err)
	}
	if !granted {
		return "", false, fmt.Errorf("camera permission is required to take photos: %w", ErrPermissionDenied)
	}
	if a.camera == nil {
		return "", false, errors.New("no camera available")
	}
	return a.camera.Pick(ctx)
}

// AcquireFromGallery selects an existing image
func (a *Adapter) AcquireFromGallery(ctx context.Context) (ImageRef, bool, error) {
	granted, err := a.permissions.RequestMediaLibrary(ctx)
	if err != nil {
		return "", false, fmt.Errorf("requesting media library permission: %w", err)
	}
	if !granted {
		return "", false, fmt.Errorf("media library permission is required to select photos: %w", ErrPermissionDenied)
	}
	if a.gallery == nil {
		return "", false, errors.New("no photo library available")
	}
	return a.gallery.Pick(ctx)
}

// DirPermissions grants access when the backing directory is usable.
// An empty directory means no restriction.
type DirPermissions struct {
	CameraDir  string // must be writable
	LibraryDir string // must be readable
}

// RequestCamera checks that captures can be written
func (p DirPermissions) RequestCamera(ctx context.Context) (bool, error) {
	if p.CameraDir == "" {
		return true, nil
	}
	f, err := os.CreateTemp(p.CameraDir, ".permission-*")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return false, nil
		}
		return false, err
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true, nil
}

// RequestMediaLibrary checks that the library can be read
func (p DirPermissions) RequestMediaLibrary(ctx context.Context) (bool, error) {
	if p.LibraryDir == "" {
		return true, nil
	}
	f, err := os.Open(p.LibraryDir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return false, nil
		}
		return false, err
	}
	f.Close()
	return true, nil
}

// PathPicker picks a fixed path. An empty path behaves like a cancelled picker.
type PathPicker string

// Pick returns the configured path
func (p PathPicker) Pick(ctx context.Context) (ImageRef, bool, error) {
	if p == "" {
		return "", false, nil
	}
	return ImageRef(p), true, nil
}

// ReaderCamera captures an image by reading its bytes from a stream, e.g. stdin
// fed by a capture tool, and keeping them in storage. Empty input is a cancel.
type ReaderCamera struct {
	r       io.Reader
	storage Storage
}

// NewReaderCamera creates a new ReaderCamera
func NewReaderCamera(r io.Reader, storage Storage) *ReaderCamera {
	return &ReaderCamera{r: r, storage: storage}
}

// Pick reads one image from the stream
func (c *ReaderCamera) Pick(ctx context.Context) (ImageRef, bool, error) {
	data, err := io.ReadAll(io.LimitReader(c.r, maxCaptureSize+1))
	if err != nil {
		return "", false, fmt.Errorf("reading capture: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	if len(data) > maxCaptureSize {
		return "", false, fmt.Errorf("capture is larger than %d bytes", maxCaptureSize)
	}

	ref, err := SaveCapture(c.storage, "camera.jpg", data)
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

// SaveCapture keeps image bytes in storage under a unique, sanitized name
func SaveCapture(storage Storage, filename string, data []byte) (ImageRef, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), SanitizeFilename(filename))
	saved, err := storage.Save(name, data)
	if err != nil {
		return "", fmt.Errorf("saving capture: %w", err)
	}
	return storage.Path(saved), nil
}
