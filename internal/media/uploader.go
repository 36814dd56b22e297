package media

import (
	"context"
	"log/slog"

	"github.com/utafrali/VideoTube/pkg/logger"
)

// Uploader sends staged files to a Gateway and removes the staged copy after
// every attempt, successful or not.
type Uploader struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewUploader wraps gateway.
func NewUploader(gateway Gateway, logger *slog.Logger) *Uploader {
	return &Uploader{gateway: gateway, logger: logger}
}

// Upload hosts file in folder and returns its URL. A nil file yields "" and
// no error.
func (u *Uploader) Upload(ctx context.Context, file *LocalFile, folder string) (string, error) {
	if file == nil {
		return "", nil
	}
	defer Discard(file)

	url, err := u.gateway.Upload(ctx, file, folder)
	if err != nil {
		logger.WithContext(ctx, u.logger).WarnContext(ctx, "media upload failed",
			slog.String("folder", folder),
			slog.String("filename", file.Filename),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return url, nil
}

// Delete removes a hosted file. Empty URLs are ignored. Failures are logged
// and returned; callers treat them as non-fatal.
func (u *Uploader) Delete(ctx context.Context, url, folder string) error {
	if url == "" {
		return nil
	}
	if err := u.gateway.Delete(ctx, url, folder); err != nil {
		logger.WithContext(ctx, u.logger).WarnContext(ctx, "media delete failed",
			slog.String("folder", folder),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
