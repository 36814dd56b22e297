package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// TempStore stages multipart uploads in a local directory.
type TempStore struct {
	dir      string
	maxBytes int64
}

// NewTempStore creates dir if needed. maxBytes <= 0 disables the size cap.
func NewTempStore(dir string, maxBytes int64) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return &TempStore{dir: dir, maxBytes: maxBytes}, nil
}


// Stage copies the uploaded part to disk and sniffs its content type. Only
// images are accepted. Nothing is left on disk when Stage fails.
func (s *TempStore) Stage(fh *multipart.FileHeader) (_ *LocalFile, err error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(s.dir, "upload-*"+strings.ToLower(filepath.Ext(fh.Filename)))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		dst.Close()
		if err != nil {
			os.Remove(dst.Name())
		}
	}()

	var r io.Reader = src
	if s.maxBytes > 0 {
		r = io.LimitReader(src, s.maxBytes+1)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if n == 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s is empty", fh.Filename))
	}
	head = head[:n]

	contentType := mimetype.Detect(head).String()
	if !allowedImageTypes[contentType] {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported file type %s", contentType))
	}

	if _, err = dst.Write(head); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	written, err := io.Copy(dst, r)
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	size := int64(n) + written
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, apperrors.InvalidInput(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}

	return &LocalFile{
		Path:        dst.Name(),
		Filename:    filepath.Base(fh.Filename),
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Discard removes staged files. Nil entries and already removed files are
// ignored.
func Discard(files ...*LocalFile) {
	for _, f := range files {
		if f == nil || f.Path == "" {
			continue
		}
		_ = os.Remove(f.Path)
	}
}
