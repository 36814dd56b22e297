// Package media stages uploaded files on local disk and hands them to a
// hosting gateway.
package media

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/VideoTube/pkg/slug"
)

// Hosting folders.
const (
	FolderAvatars = "avatars"
	FolderCovers  = "covers"
)

// Gateway hosts files and returns their public URL.
type Gateway interface {
	// Upload sends the staged file to folder and returns its public URL.
	Upload(ctx context.Context, file *LocalFile, folder string) (string, error)

	// Delete removes a previously hosted file identified by its URL.
	Delete(ctx context.Context, url, folder string) error
}

// LocalFile is a file staged on local disk awaiting upload.
type LocalFile struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Ext returns the extension of the original filename, lowercased and
// including the leading dot.
func (f *LocalFile) Ext() string {
	return strings.ToLower(path.Ext(f.Filename))
}

// NewObjectName derives a unique, URL-safe name for f without extension.
func NewObjectName(f *LocalFile) string {
	return slug.FromFilename(f.Filename, 48) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// PublicID is the hosted identifier of url within folder: the folder joined
// with the last path segment stripped of its extension.
//
//	PublicID("https://res.example.com/v1/avatars/me-1a2b.png", "avatars") -> "avatars/me-1a2b"
func PublicID(url, folder string) string {
	url, _, _ = strings.Cut(url, "?")
	base := path.Base(url)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return ""
	}
	if folder == "" {
		return base
	}
	return folder + "/" + base
}
