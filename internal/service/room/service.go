package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watchroom/server/internal/repository/history"
	"github.com/watchroom/server/pkg/randstr"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyHost      = errors.New("host cannot join own room as viewer")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEmptyMessage     = errors.New("empty message")
)

type iConnRepo interface {
	Add(conn *websocket.Conn, connectionId string) error
	RemoveByConn(conn *websocket.Conn) error
	RemoveByConnectionId(connectionId string) error
	GetConn(connectionId string) (*websocket.Conn, error)
	GetConnectionId(conn *websocket.Conn) (string, error)
}

type iHistorySink interface {
	RecordWatchSession(ctx context.Context, params *history.RecordWatchSessionParams) error
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	RoomIdLength int
	SinkTimeout  time.Duration
}

type service struct {
	mu        sync.RWMutex
	rooms     map[string]*room
	connRooms map[string]map[string]struct{}

	connRepo    iConnRepo
	historySink iHistorySink
	generator   iGenerator
	logger      *slog.Logger

	roomIdLength int
	sinkTimeout  time.Duration
	now          func() time.Time
}

func NewService(connRepo iConnRepo, historySink iHistorySink, cfg *Config, logger *slog.Logger) *service {
	s := service{
		rooms:        make(map[string]*room),
		connRooms:    make(map[string]map[string]struct{}),
		connRepo:     connRepo,
		historySink:  historySink,
		logger:       logger,
		roomIdLength: cfg.RoomIdLength,
		sinkTimeout:  cfg.SinkTimeout,
		now:          time.Now,
	}

	if s.roomIdLength <= 0 {
		s.roomIdLength = 8
	}
	if s.sinkTimeout <= 0 {
		s.sinkTimeout = 5 * time.Second
	}

	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

type ConnectParams struct {
	Conn         *websocket.Conn
	ConnectionId string
}

func (s *service) Connect(ctx context.Context, params *ConnectParams) error {
	return s.connRepo.Add(params.Conn, params.ConnectionId)
}

// getRoom is the only lookup path into the registry. Mutations of room state
// happen under the room's own lock, never under the registry lock, so
// commands for different rooms do not serialize against each other.
func (s *service) getRoom(roomId string) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomId]

	return r, ok
}

// emitWatchSession hands the finalized record to the history sink without holding
// any lock. The write is fire-and-forget: a slow or failing sink must never
// delay fan-out to viewers.
func (s *service) emitWatchSession(ctx context.Context, rec *history.RecordWatchSessionParams) {
	go func() {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
		defer cancel()

		if err := s.historySink.RecordWatchSession(sinkCtx, rec); err != nil {
			s.logger.WarnContext(ctx, "failed to record watch session",
				"movie_label", rec.MovieLabel,
				"error", err,
			)
		}
	}()
}
