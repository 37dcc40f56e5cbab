package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/watchroom/server/internal/repository/genre/httpapi"
	"github.com/watchroom/server/internal/repository/history"
)

type iHistoryRepo interface {
	RecordWatchSession(ctx context.Context, params *history.RecordWatchSessionParams) error
}

// GenreClient is exported so the app wiring can leave it nil when no genre
// service is configured.
type GenreClient interface {
	PredictGenre(ctx context.Context, title string) (httpapi.Prediction, error)
}

type service struct {
	historyRepo iHistoryRepo
	genreClient GenreClient
	logger      *slog.Logger
}

// NewService builds the watch-session recorder. genreClient may be nil, in
// which case records are appended without genre enrichment.
func NewService(historyRepo iHistoryRepo, genreClient GenreClient, logger *slog.Logger) *service {
	return &service{
		historyRepo: historyRepo,
		genreClient: genreClient,
		logger:      logger,
	}
}

// RecordWatchSession enriches the record with a predicted genre when possible
// and appends it to the history store. Enrichment is best-effort: an
// unreachable genre service only costs the genre fields.
func (s *service) RecordWatchSession(ctx context.Context, params *history.RecordWatchSessionParams) error {
	if s.genreClient != nil && params.MovieLabel != "" {
		prediction, err := s.genreClient.PredictGenre(ctx, params.MovieLabel)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to predict genre", "movie_label", params.MovieLabel, "error", err)
		} else {
			params.Genre = &prediction.Genre
			params.GenreConfidence = &prediction.Confidence
		}
	}

	if err := s.historyRepo.RecordWatchSession(ctx, params); err != nil {
		return fmt.Errorf("failed to record watch session: %w", err)
	}

	return nil
}
