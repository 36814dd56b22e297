package media

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingGateway struct{ err error }

func (g failingGateway) Upload(context.Context, *LocalFile, string) (string, error) {
	return "", g.err
}

func (g failingGateway) Delete(context.Context, string, string) error {
	return g.err
}

func TestUploader_RemovesStagedFileOnSuccess(t *testing.T) {
	gw := NewMemoryGateway("http://media.local")
	up := NewUploader(gw, testLogger())
	f := stagedFile(t, "me.png", pngBytes)

	url, err := up.Upload(context.Background(), f, FolderAvatars)
	require.NoError(t, err)
	assert.Contains(t, url, "http://media.local/avatars/me-")
	assert.True(t, gw.Has(url))

	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploader_RemovesStagedFileOnFailure(t *testing.T) {
	up := NewUploader(failingGateway{err: errors.New("host down")}, testLogger())
	f := stagedFile(t, "me.png", pngBytes)

	url, err := up.Upload(context.Background(), f, FolderAvatars)
	require.Error(t, err)
	assert.Empty(t, url)

	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploader_NilFile(t *testing.T) {
	up := NewUploader(failingGateway{err: errors.New("unused")}, testLogger())

	url, err := up.Upload(context.Background(), nil, FolderCovers)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestUploader_Delete(t *testing.T) {
	gw := NewMemoryGateway("http://media.local")
	up := NewUploader(gw, testLogger())

	url, err := up.Upload(context.Background(), stagedFile(t, "c.png", pngBytes), FolderCovers)
	require.NoError(t, err)

	require.NoError(t, up.Delete(context.Background(), url, FolderCovers))
	assert.False(t, gw.Has(url))
	assert.NoError(t, up.Delete(context.Background(), "", FolderCovers))

	failing := NewUploader(failingGateway{err: errors.New("boom")}, testLogger())
	assert.Error(t, failing.Delete(context.Background(), url, FolderCovers))
}
