package room

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type PlaybackParams struct {
	RoomId      string
	SenderId    string
	CurrentTime float64
}

type PlaybackResponse struct {
	CurrentTime float64
	// conns of every member except the sender, which already reflects the
	// state locally
	Conns []*websocket.Conn
}

// SetPlaying applies a host play command. Play is idempotent with respect to
// the playing flag but always updates the position and is always fanned out,
// which lets viewers reconcile after network jitter.
func (s *service) SetPlaying(ctx context.Context, params *PlaybackParams) (PlaybackResponse, error) {
	return s.applyPlayback(ctx, params, func(r *room, now time.Time) {
		r.isPlaying = true
		r.currentTime = params.CurrentTime
		r.positionAt = now
		r.session.resume(now)
	})
}

func (s *service) SetPaused(ctx context.Context, params *PlaybackParams) (PlaybackResponse, error) {
	return s.applyPlayback(ctx, params, func(r *room, now time.Time) {
		r.isPlaying = false
		r.currentTime = params.CurrentTime
		r.positionAt = now
		r.session.pause(now)
	})
}

// Seek updates the position only. It never touches the playing flag or the
// session accounting.
func (s *service) Seek(ctx context.Context, params *PlaybackParams) (PlaybackResponse, error) {
	return s.applyPlayback(ctx, params, func(r *room, now time.Time) {
		r.currentTime = params.CurrentTime
		r.positionAt = now
	})
}

func (s *service) applyPlayback(ctx context.Context, params *PlaybackParams, mutate func(r *room, now time.Time)) (PlaybackResponse, error) {
	r, ok := s.getRoom(params.RoomId)
	if !ok {
		return PlaybackResponse{}, ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return PlaybackResponse{}, ErrRoomNotFound
	}
	if params.SenderId != r.hostId {
		// dropped, not errored: reporting would confirm host identity to a
		// viewer probing room ids
		r.mu.Unlock()
		return PlaybackResponse{}, ErrPermissionDenied
	}

	mutate(r, s.now())
	otherIds := r.otherMemberIds(params.SenderId)
	r.mu.Unlock()

	return PlaybackResponse{
		CurrentTime: params.CurrentTime,
		Conns:       s.getConns(ctx, otherIds),
	}, nil
}

type AttachSourceParams struct {
	RoomId   string
	SenderId string
	Location string
	Label    string
}

type AttachSourceResponse struct {
	Source SourceState
	// all members including the host: the host player must also reload
	Conns []*websocket.Conn
}

// AttachSource sets a new playback source for the room, resetting position
// and pausing. Host-only, like every other playback mutation.
func (s *service) AttachSource(ctx context.Context, params *AttachSourceParams) (AttachSourceResponse, error) {
	r, ok := s.getRoom(params.RoomId)
	if !ok {
		return AttachSourceResponse{}, ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return AttachSourceResponse{}, ErrRoomNotFound
	}
	if params.SenderId != r.hostId {
		r.mu.Unlock()
		return AttachSourceResponse{}, ErrPermissionDenied
	}

	now := s.now()
	location := params.Location
	r.sourceLocation = &location
	r.movieLabel = params.Label
	r.currentTime = 0
	r.isPlaying = false
	r.positionAt = now
	// a source change while playing stops playback, so the running interval
	// must be closed or paused wall-clock would leak into the total
	r.session.pause(now)

	memberIds := r.memberIds()
	r.mu.Unlock()

	s.logger.InfoContext(ctx, "source attached", "room_id", params.RoomId, "location", params.Location)

	return AttachSourceResponse{
		Source: SourceState{
			Location: params.Location,
			Label:    params.Label,
		},
		Conns: s.getConns(ctx, memberIds),
	}, nil
}
