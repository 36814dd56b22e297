package service

import (
	"context"
	"strings"

	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/repository"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/tracing"
)

// ChannelService answers channel profile and watch history reads.
type ChannelService struct {
	channels repository.ChannelRepository
}

// NewChannelService creates a new channel service.
func NewChannelService(channels repository.ChannelRepository) *ChannelService {
	return &ChannelService{channels: channels}
}

// GetChannelProfile returns the public profile of the channel named
// username. viewerID is empty for anonymous callers.
func (s *ChannelService) GetChannelProfile(ctx context.Context, username, viewerID string) (_ *domain.ChannelProfile, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "ChannelService.GetChannelProfile")
	defer func() { end(err) }()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.InvalidInput("username is missing")
	}
	return s.channels.GetChannelProfile(ctx, username, viewerID)
}

// GetWatchHistory returns the user's watched videos in history order.
func (s *ChannelService) GetWatchHistory(ctx context.Context, userID string) ([]domain.WatchedVideo, error) {
	history, err := s.channels.GetWatchHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.WatchedVideo{}
	}
	return history, nil
}
