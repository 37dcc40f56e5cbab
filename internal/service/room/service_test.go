package room

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watchroom/server/internal/repository/connection/inmemory"
	"github.com/watchroom/server/internal/repository/history"
)

type fakeSink struct {
	mu      sync.Mutex
	records []history.RecordWatchSessionParams
	ch      chan history.RecordWatchSessionParams
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan history.RecordWatchSessionParams, 8)}
}

func (f *fakeSink) RecordWatchSession(_ context.Context, params *history.RecordWatchSessionParams) error {
	f.mu.Lock()
	f.records = append(f.records, *params)
	f.mu.Unlock()
	f.ch <- *params
	return nil
}

func (f *fakeSink) waitRecord(t *testing.T) history.RecordWatchSessionParams {
	t.Helper()
	select {
	case rec := <-f.ch:
		return rec
	case <-time.After(time.Second):
		t.Fatal("no watch session record received")
		return history.RecordWatchSessionParams{}
	}
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (*service, *fakeSink, *fakeClock) {
	t.Helper()
	sink := newFakeSink()
	clock := newFakeClock()
	s := NewService(inmemory.NewRepo(), sink, &Config{}, slog.Default())
	s.now = clock.Now
	return s, sink, clock
}

func (s *service) mustConnect(t *testing.T, connectionId string) *websocket.Conn {
	t.Helper()
	conn := &websocket.Conn{}
	require.NoError(t, s.Connect(context.Background(), &ConnectParams{Conn: conn, ConnectionId: connectionId}))
	return conn
}

func connSet(conns []*websocket.Conn) map[*websocket.Conn]bool {
	set := make(map[*websocket.Conn]bool, len(conns))
	for _, conn := range conns {
		set[conn] = true
	}
	return set
}

func TestCreateRoom(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	assert.Len(t, createRoomResp.RoomId, 8, "room id must have the configured length")
	assert.Equal(t, RoleHost, createRoomResp.Role)

	// host cannot join its own room as viewer
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: createRoomResp.RoomId, ConnectionId: "host"})
	assert.ErrorIs(t, err, ErrAlreadyHost)

	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: "nonexistent", ConnectionId: "viewer"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

type fixedThenRandomGenerator struct {
	fixed string
	used  bool
	inner iGenerator
}

func (g *fixedThenRandomGenerator) GenerateRandomString(length int) string {
	if !g.used {
		g.used = true
		return g.fixed
	}
	return g.inner.GenerateRandomString(length)
}

func TestCreateRoomIdCollisionRetried(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host1"})
	require.NoError(t, err)

	// force the generator to produce the existing id once
	s.generator = &fixedThenRandomGenerator{fixed: first.RoomId, inner: s.generator}

	second, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RoomId, second.RoomId, "collision must be retried, not returned")
}

func TestJoinRoomSnapshot(t *testing.T) {
	s, _, clock := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")
	s.mustConnect(t, "viewer")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	// before any video is attached the snapshot carries no source
	joinRoomResp, err := s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer"})
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, joinRoomResp.Role)
	assert.Nil(t, joinRoomResp.Snapshot.SourceLocation)
	assert.False(t, joinRoomResp.Snapshot.IsPlaying)
	assert.Zero(t, joinRoomResp.Snapshot.CurrentTime)

	_, err = s.AttachSource(ctx, &AttachSourceParams{RoomId: roomId, SenderId: "host", Location: "movie.mp4", Label: "Movie"})
	require.NoError(t, err)

	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 0})
	require.NoError(t, err)

	// a joiner 5 seconds into playback lands at the host's actual position
	clock.Advance(5 * time.Second)
	s.mustConnect(t, "viewer2")
	joinRoomResp, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer2"})
	require.NoError(t, err)
	require.NotNil(t, joinRoomResp.Snapshot.SourceLocation)
	assert.Equal(t, "movie.mp4", *joinRoomResp.Snapshot.SourceLocation)
	assert.True(t, joinRoomResp.Snapshot.IsPlaying)
	assert.InDelta(t, 5.0, joinRoomResp.Snapshot.CurrentTime, 0.001)
}

func TestPlaybackAuthority(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")
	s.mustConnect(t, "viewer")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer"})
	require.NoError(t, err)

	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "viewer", CurrentTime: 42})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.SetPaused(ctx, &PlaybackParams{RoomId: roomId, SenderId: "viewer", CurrentTime: 42})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.Seek(ctx, &PlaybackParams{RoomId: roomId, SenderId: "viewer", CurrentTime: 42})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.AttachSource(ctx, &AttachSourceParams{RoomId: roomId, SenderId: "viewer", Location: "evil.mp4"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// state must be untouched by any of the rejected commands
	s.mustConnect(t, "viewer2")
	joinRoomResp, err := s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer2"})
	require.NoError(t, err)
	assert.Nil(t, joinRoomResp.Snapshot.SourceLocation)
	assert.False(t, joinRoomResp.Snapshot.IsPlaying)
	assert.Zero(t, joinRoomResp.Snapshot.CurrentTime)
}

func TestPlaybackFanOutExcludesSender(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	hostConn := s.mustConnect(t, "host")
	viewer1Conn := s.mustConnect(t, "viewer1")
	viewer2Conn := s.mustConnect(t, "viewer2")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer1"})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer2"})
	require.NoError(t, err)

	playResp, err := s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 1})
	require.NoError(t, err)
	assert.Len(t, playResp.Conns, 2)
	conns := connSet(playResp.Conns)
	assert.False(t, conns[hostConn], "sender must be excluded from the fan-out")
	assert.True(t, conns[viewer1Conn])
	assert.True(t, conns[viewer2Conn])

	// attach reaches everyone, the host player must reload too
	attachResp, err := s.AttachSource(ctx, &AttachSourceParams{RoomId: roomId, SenderId: "host", Location: "movie.mp4"})
	require.NoError(t, err)
	assert.Len(t, attachResp.Conns, 3)
	assert.True(t, connSet(attachResp.Conns)[hostConn])
}

func TestRoomsDoNotInterleave(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host1")
	s.mustConnect(t, "host2")
	viewer1Conn := s.mustConnect(t, "viewer1")
	viewer2Conn := s.mustConnect(t, "viewer2")

	room1, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host1"})
	require.NoError(t, err)
	room2, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host2"})
	require.NoError(t, err)

	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: room1.RoomId, ConnectionId: "viewer1"})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: room2.RoomId, ConnectionId: "viewer2"})
	require.NoError(t, err)

	playResp, err := s.SetPlaying(ctx, &PlaybackParams{RoomId: room1.RoomId, SenderId: "host1", CurrentTime: 1})
	require.NoError(t, err)
	conns := connSet(playResp.Conns)
	assert.True(t, conns[viewer1Conn])
	assert.False(t, conns[viewer2Conn], "commands for one room must never reach another")

	// host of one room holds no authority in the other
	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: room2.RoomId, SenderId: "host1", CurrentTime: 1})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestChatRelay(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")
	s.mustConnect(t, "viewer")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer"})
	require.NoError(t, err)

	_, err = s.SendChatMessage(ctx, &SendChatMessageParams{RoomId: roomId, SenderId: "viewer", Text: "   \t  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.SendChatMessage(ctx, &SendChatMessageParams{RoomId: "nonexistent", SenderId: "viewer", Text: "hi"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	chatResp, err := s.SendChatMessage(ctx, &SendChatMessageParams{RoomId: roomId, SenderId: "viewer", Text: "  hi all  "})
	require.NoError(t, err)
	assert.Equal(t, "hi all", chatResp.Message.Text)
	assert.Equal(t, RoleViewer, chatResp.Message.Role)
	assert.NotZero(t, chatResp.Message.Time)
	// everyone gets the echo, sender included
	assert.Len(t, chatResp.Conns, 2)

	chatResp, err = s.SendChatMessage(ctx, &SendChatMessageParams{RoomId: roomId, SenderId: "host", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, RoleHost, chatResp.Message.Role)
}

func TestWatchTimeAccounting(t *testing.T) {
	s, sink, clock := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	_, err = s.AttachSource(ctx, &AttachSourceParams{RoomId: roomId, SenderId: "host", Location: "movie.mp4", Label: "Movie"})
	require.NoError(t, err)

	// play 5s, duplicate play must not reset the running interval
	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 0})
	require.NoError(t, err)
	clock.Advance(5 * time.Second)
	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 5})
	require.NoError(t, err)
	clock.Advance(7 * time.Second)

	// a paused hour must not count
	_, err = s.SetPaused(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 12})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	// seek while paused does not start an interval
	_, err = s.Seek(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 100})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	_, err = s.SetPlaying(ctx, &PlaybackParams{RoomId: roomId, SenderId: "host", CurrentTime: 100})
	require.NoError(t, err)
	clock.Advance(3 * time.Second)

	_, err = s.Disconnect(ctx, &DisconnectParams{ConnectionId: "host"})
	require.NoError(t, err)

	rec := sink.waitRecord(t)
	assert.Equal(t, "Movie", rec.MovieLabel)
	assert.Equal(t, int64(15), rec.DurationSeconds, "5+7 playing, then 3 playing after the pause")
	assert.Equal(t, clock.Now(), rec.EndedAt)
}

func TestDisconnectHostClosesRoom(t *testing.T) {
	s, sink, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")
	viewerConn := s.mustConnect(t, "viewer")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer"})
	require.NoError(t, err)

	disconnectResp, err := s.Disconnect(ctx, &DisconnectParams{ConnectionId: "host"})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Updates, 1)
	assert.True(t, disconnectResp.Updates[0].Closed)
	assert.Equal(t, roomId, disconnectResp.Updates[0].RoomId)
	assert.True(t, connSet(disconnectResp.Updates[0].Conns)[viewerConn])

	// session was still idle: record emitted anyway, duration zero
	rec := sink.waitRecord(t)
	assert.Zero(t, rec.DurationSeconds)

	// the room is gone from the registry
	s.mustConnect(t, "late")
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "late"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDisconnectViewer(t *testing.T) {
	s, sink, _ := newTestService(t)
	ctx := context.Background()
	hostConn := s.mustConnect(t, "host")
	s.mustConnect(t, "viewer")

	createRoomResp, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer"})
	require.NoError(t, err)

	disconnectResp, err := s.Disconnect(ctx, &DisconnectParams{ConnectionId: "viewer"})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Updates, 1)
	assert.False(t, disconnectResp.Updates[0].Closed)
	assert.Equal(t, "viewer", disconnectResp.Updates[0].LeftConnectionId)
	assert.True(t, connSet(disconnectResp.Updates[0].Conns)[hostConn])

	// viewer loss never finalizes the session
	assert.Zero(t, sink.count())

	// room stays live waiting for new viewers
	s.mustConnect(t, "viewer2")
	_, err = s.JoinRoom(ctx, &JoinRoomParams{RoomId: roomId, ConnectionId: "viewer2"})
	assert.NoError(t, err)
}

func TestDisconnectIdempotent(t *testing.T) {
	s, sink, _ := newTestService(t)
	ctx := context.Background()
	s.mustConnect(t, "host")

	_, err := s.CreateRoom(ctx, &CreateRoomParams{ConnectionId: "host"})
	require.NoError(t, err)

	disconnectResp, err := s.Disconnect(ctx, &DisconnectParams{ConnectionId: "host"})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Updates, 1)
	assert.True(t, disconnectResp.Updates[0].Closed)
	assert.Empty(t, disconnectResp.Updates[0].Conns)
	sink.waitRecord(t)

	// a duplicate disconnect event must be a clean no-op
	disconnectResp, err = s.Disconnect(ctx, &DisconnectParams{ConnectionId: "host"})
	require.NoError(t, err)
	assert.Empty(t, disconnectResp.Updates)
	assert.Equal(t, 1, sink.count(), "finalized record must be emitted exactly once")
}
