package room

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watchroom/server/internal/repository/history"
)

type DisconnectParams struct {
	ConnectionId string
}

type RoomUpdate struct {
	RoomId string
	// Closed reports a host loss: remaining members get a room closed
	// notice and the room is gone from the registry.
	Closed           bool
	LeftConnectionId string
	Conns            []*websocket.Conn
}

type DisconnectResponse struct {
	Updates []RoomUpdate
}

// Disconnect reconciles a connection loss across every room the connection
// was a member of. Invoking it twice for the same connection is a no-op: the
// reverse index entry is consumed on the first call and each room teardown is
// guarded by its closed flag.
func (s *service) Disconnect(ctx context.Context, params *DisconnectParams) (DisconnectResponse, error) {
	if err := s.connRepo.RemoveByConnectionId(params.ConnectionId); err != nil {
		s.logger.DebugContext(ctx, "connection already removed", "connection_id", params.ConnectionId, "error", err)
	}

	s.mu.Lock()
	roomIds := s.connRooms[params.ConnectionId]
	delete(s.connRooms, params.ConnectionId)

	type pendingUpdate struct {
		roomId    string
		closed    bool
		memberIds []string
		record    *history.RecordWatchSessionParams
	}

	pending := make([]pendingUpdate, 0, len(roomIds))
	for roomId := range roomIds {
		r, ok := s.rooms[roomId]
		if !ok {
			continue
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}

		delete(r.members, params.ConnectionId)

		switch {
		case params.ConnectionId == r.hostId:
			// host loss always ends the room, regardless of remaining
			// viewer count; checked before emptiness so a host who is
			// also the last member still produces a closure notice
			update := pendingUpdate{
				roomId:    roomId,
				closed:    true,
				memberIds: r.memberIds(),
			}
			if r.session.end(s.now()) {
				update.record = &history.RecordWatchSessionParams{
					MovieLabel:      r.movieLabel,
					DurationSeconds: int64(r.session.accumulated.Round(time.Second).Seconds()),
					EndedAt:         s.now(),
				}
			}
			r.closed = true
			delete(s.rooms, roomId)
			s.dropRoomFromIndexLocked(roomId, update.memberIds)
			pending = append(pending, update)
		case len(r.members) == 0:
			r.closed = true
			delete(s.rooms, roomId)
		default:
			pending = append(pending, pendingUpdate{
				roomId:    roomId,
				memberIds: r.memberIds(),
			})
		}
		r.mu.Unlock()
	}
	s.mu.Unlock()

	updates := make([]RoomUpdate, 0, len(pending))
	for _, p := range pending {
		if p.record != nil {
			s.emitWatchSession(ctx, p.record)
		}
		if p.closed {
			s.logger.InfoContext(ctx, "room closed", "room_id", p.roomId, "host_id", params.ConnectionId)
		}

		updates = append(updates, RoomUpdate{
			RoomId:           p.roomId,
			Closed:           p.closed,
			LeftConnectionId: params.ConnectionId,
			Conns:            s.getConns(ctx, p.memberIds),
		})
	}

	return DisconnectResponse{Updates: updates}, nil
}

// dropRoomFromIndexLocked removes the torn-down room from the reverse index
// entries of its remaining members. Registry lock must be held.
func (s *service) dropRoomFromIndexLocked(roomId string, memberIds []string) {
	for _, memberId := range memberIds {
		if roomIds, ok := s.connRooms[memberId]; ok {
			delete(roomIds, roomId)
			if len(roomIds) == 0 {
				delete(s.connRooms, memberId)
			}
		}
	}
}
