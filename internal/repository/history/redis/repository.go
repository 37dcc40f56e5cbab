package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/watchroom/server/internal/repository/history"
)

type repo struct {
	rc     *redis.Client
	stream string
}

func NewRepo(rc *redis.Client, stream string) *repo {
	return &repo{
		rc:     rc,
		stream: stream,
	}
}

// RecordWatchSession appends a finalized watch-session record to the history
// stream. The stream is append-only; nothing here is read back by the server.
func (r repo) RecordWatchSession(ctx context.Context, params *history.RecordWatchSessionParams) error {
	values := map[string]any{
		"movie_label":      params.MovieLabel,
		"duration_seconds": params.DurationSeconds,
		"ended_at":         params.EndedAt.Unix(),
	}
	if params.Genre != nil {
		values["genre"] = *params.Genre
	}
	if params.GenreConfidence != nil {
		values["genre_confidence"] = strconv.FormatFloat(*params.GenreConfidence, 'f', 4, 64)
	}

	if err := r.rc.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to record watch session: %w", err)
	}

	return nil
}
