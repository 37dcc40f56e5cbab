package room

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type room struct {
	mu sync.Mutex

	id        string
	hostId    string
	members   map[string]struct{}
	createdAt time.Time
	closed    bool

	// host-authoritative playback state
	sourceLocation *string
	movieLabel     string
	currentTime    float64
	isPlaying      bool
	// when currentTime was last reported by the host
	positionAt time.Time

	session session
}

// role is derived, never stored: host iff the id matches hostId. Keeping it a
// relation rules out role/identity divergence.
func (r *room) role(connectionId string) Role {
	if connectionId == r.hostId {
		return RoleHost
	}

	return RoleViewer
}

// snapshot reads source, position and playing flag in one go. While playing,
// the position is extrapolated from the host's last report so a late joiner
// lands where the host actually is, not where it was at the last event.
func (r *room) snapshot(now time.Time) Snapshot {
	currentTime := r.currentTime
	if r.isPlaying && !r.positionAt.IsZero() {
		currentTime += now.Sub(r.positionAt).Seconds()
	}

	return Snapshot{
		SourceLocation: r.sourceLocation,
		CurrentTime:    currentTime,
		IsPlaying:      r.isPlaying,
	}
}

func (r *room) otherMemberIds(excluded string) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != excluded {
			ids = append(ids, id)
		}
	}

	return ids
}

func (r *room) memberIds() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}

	return ids
}

type CreateRoomParams struct {
	ConnectionId string
}

type CreateRoomResponse struct {
	RoomId string
	Role   Role
}

// CreateRoom registers a new room with the requesting connection as its host
// and sole member. Host identity never changes for the lifetime of the room.
func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomId := s.generator.GenerateRandomString(s.roomIdLength)
	for _, exists := s.rooms[roomId]; exists; _, exists = s.rooms[roomId] {
		// collision is unlikely but must be retried, not ignored
		s.logger.DebugContext(ctx, "room id collision, regenerating", "room_id", roomId)
		roomId = s.generator.GenerateRandomString(s.roomIdLength)
	}

	s.rooms[roomId] = &room{
		id:        roomId,
		hostId:    params.ConnectionId,
		members:   map[string]struct{}{params.ConnectionId: {}},
		createdAt: s.now(),
	}
	s.addConnRoomLocked(params.ConnectionId, roomId)

	s.logger.InfoContext(ctx, "room created", "room_id", roomId, "host_id", params.ConnectionId)

	return CreateRoomResponse{
		RoomId: roomId,
		Role:   RoleHost,
	}, nil
}

type JoinRoomParams struct {
	RoomId       string
	ConnectionId string
}

type JoinRoomResponse struct {
	RoomId   string
	Role     Role
	Snapshot Snapshot
	Conns    []*websocket.Conn
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	s.mu.Lock()

	r, ok := s.rooms[params.RoomId]
	if !ok {
		s.mu.Unlock()
		return JoinRoomResponse{}, ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.mu.Unlock()
		return JoinRoomResponse{}, ErrRoomNotFound
	}
	if params.ConnectionId == r.hostId {
		r.mu.Unlock()
		s.mu.Unlock()
		return JoinRoomResponse{}, ErrAlreadyHost
	}

	r.members[params.ConnectionId] = struct{}{}
	s.addConnRoomLocked(params.ConnectionId, params.RoomId)

	snapshot := r.snapshot(s.now())
	otherIds := r.otherMemberIds(params.ConnectionId)

	r.mu.Unlock()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "member joined room", "room_id", params.RoomId, "connection_id", params.ConnectionId)

	return JoinRoomResponse{
		RoomId:   params.RoomId,
		Role:     RoleViewer,
		Snapshot: snapshot,
		Conns:    s.getConns(ctx, otherIds),
	}, nil
}

func (s *service) addConnRoomLocked(connectionId, roomId string) {
	roomIds, ok := s.connRooms[connectionId]
	if !ok {
		roomIds = make(map[string]struct{})
		s.connRooms[connectionId] = roomIds
	}
	roomIds[roomId] = struct{}{}
}
