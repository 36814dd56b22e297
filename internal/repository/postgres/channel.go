package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/pkg/database"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

// ChannelRepository implements repository.ChannelRepository using PostgreSQL.
type ChannelRepository struct {
	db database.DBTX
}

// NewChannelRepository creates a new PostgreSQL-backed channel repository.
func NewChannelRepository(db database.DBTX) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelProfileQuery = `
	SELECT u.id::text, u.full_name, u.username, u.email, u.avatar_url, u.cover_image_url,
	       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
	       (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
	       EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2::uuid)
	FROM users u
	WHERE u.username = $1`

// GetChannelProfile loads a channel and its subscription aggregates in a
// single statement. An anonymous or malformed viewer id binds NULL, so
// isSubscribed is false.
func (r *ChannelRepository) GetChannelProfile(ctx context.Context, username, viewerID string) (_ *domain.ChannelProfile, err error) {
	ctx, end := database.TraceQuery(ctx, "GetChannelProfile", channelProfileQuery)
	defer func() { end(err) }()

	var viewer any
	if validID(viewerID) {
		viewer = viewerID
	}

	var p domain.ChannelProfile
	err = r.db.QueryRow(ctx, channelProfileQuery, strings.ToLower(strings.TrimSpace(username)), viewer).Scan(
		&p.ID,
		&p.FullName,
		&p.Username,
		&p.Email,
		&p.Avatar,
		&p.CoverImage,
		&p.SubscribersCount,
		&p.ChannelsSubscribedToCount,
		&p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("channel does not exist")
		}
		return nil, fmt.Errorf("query channel profile: %w", err)
	}
	return &p, nil
}

const watchHistoryQuery = `
	SELECT v.id::text, v.title, v.description, v.video_file_url, v.thumbnail_url,
	       v.duration_seconds, v.views, v.is_published, v.created_at,
	       o.id::text, o.full_name, o.username, o.avatar_url
	FROM users u
	CROSS JOIN LATERAL unnest(u.watch_history) WITH ORDINALITY AS h(video_id, position)
	JOIN videos v ON v.id = h.video_id
	JOIN users o ON o.id = v.owner_id
	WHERE u.id = $1
	ORDER BY h.position`

// GetWatchHistory returns watched videos in history order with each video's
// owner embedded. Entries whose video no longer exists are skipped.
func (r *ChannelRepository) GetWatchHistory(ctx context.Context, userID string) (_ []domain.WatchedVideo, err error) {
	history := make([]domain.WatchedVideo, 0)
	if !validID(userID) {
		return history, nil
	}

	ctx, end := database.TraceQuery(ctx, "GetWatchHistory", watchHistoryQuery)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, watchHistoryQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.WatchedVideo
		if err := rows.Scan(
			&v.ID,
			&v.Title,
			&v.Description,
			&v.VideoFile,
			&v.Thumbnail,
			&v.Duration,
			&v.Views,
			&v.IsPublished,
			&v.CreatedAt,
			&v.Owner.ID,
			&v.Owner.FullName,
			&v.Owner.Username,
			&v.Owner.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		history = append(history, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return history, nil
}
