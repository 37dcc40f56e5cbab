package history

import "time"

type RecordWatchSessionParams struct {
	MovieLabel      string
	DurationSeconds int64
	Genre           *string
	GenreConfidence *float64
	EndedAt         time.Time
}
