package media

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fileHeader round-trips content through a multipart form so the header
// behaves like one parsed from a real request.
func fileHeader(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(body, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File[field][0]
}

// stagedFile writes content to a temp file and returns it as a LocalFile.
func stagedFile(t *testing.T, filename string, content []byte) *LocalFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload-"+filename)
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return &LocalFile{Path: p, Filename: filename, ContentType: "image/png", Size: int64(len(content))}
}
