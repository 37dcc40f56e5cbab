package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/watchroom/server/internal/service/room"
)

type EmptyInput struct{}

func (c controller) handleAlive(_ context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return nil
}

// handleServiceError maps service sentinels to the wire. Permission denials
// are swallowed without a reply so a probing viewer learns nothing about who
// holds playback authority.
func (c controller) handleServiceError(ctx context.Context, conn *websocket.Conn, err error) error {
	switch {
	case errors.Is(err, room.ErrPermissionDenied):
		c.logger.DebugContext(ctx, "unauthorized command dropped", "error", err)
		return nil
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrAlreadyHost),
		errors.Is(err, room.ErrEmptyMessage):
		return c.writeError(ctx, conn, err)
	default:
		return err
	}
}

func (c controller) handleCreateRoom(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	connectionId := c.getConnectionIdFromCtx(ctx)

	createRoomResp, err := c.roomService.CreateRoom(ctx, &room.CreateRoomParams{
		ConnectionId: connectionId,
	})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type: "ROOM_CREATED",
		Payload: map[string]any{
			"room_id": createRoomResp.RoomId,
			"role":    createRoomResp.Role,
		},
	})
}

type JoinRoomInput struct {
	RoomId string `json:"room_id"`
}

func (c controller) handleJoinRoom(ctx context.Context, conn *websocket.Conn, input JoinRoomInput) error {
	connectionId := c.getConnectionIdFromCtx(ctx)

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId:       input.RoomId,
		ConnectionId: connectionId,
	})
	if err != nil {
		return c.handleServiceError(ctx, conn, err)
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Type: "ROOM_JOINED",
		Payload: map[string]any{
			"room_id":  joinRoomResp.RoomId,
			"role":     joinRoomResp.Role,
			"snapshot": joinRoomResp.Snapshot,
		},
	}); err != nil {
		return err
	}

	return c.broadcast(ctx, joinRoomResp.Conns, &Output{
		Type: "MEMBER_JOINED",
		Payload: map[string]any{
			"connection_id": connectionId,
		},
	})
}

type PlaybackInput struct {
	RoomId      string  `json:"room_id"`
	CurrentTime float64 `json:"current_time"`
}

func (c controller) handlePlay(ctx context.Context, conn *websocket.Conn, input PlaybackInput) error {
	return c.handlePlayback(ctx, conn, input, "PLAY", c.roomService.SetPlaying)
}

func (c controller) handlePause(ctx context.Context, conn *websocket.Conn, input PlaybackInput) error {
	return c.handlePlayback(ctx, conn, input, "PAUSE", c.roomService.SetPaused)
}

func (c controller) handleSeek(ctx context.Context, conn *websocket.Conn, input PlaybackInput) error {
	return c.handlePlayback(ctx, conn, input, "SEEK", c.roomService.Seek)
}

func (c controller) handlePlayback(
	ctx context.Context,
	conn *websocket.Conn,
	input PlaybackInput,
	outputType string,
	op func(context.Context, *room.PlaybackParams) (room.PlaybackResponse, error),
) error {
	connectionId := c.getConnectionIdFromCtx(ctx)

	playbackResp, err := op(ctx, &room.PlaybackParams{
		RoomId:      input.RoomId,
		SenderId:    connectionId,
		CurrentTime: input.CurrentTime,
	})
	if err != nil {
		return c.handleServiceError(ctx, conn, err)
	}

	return c.broadcast(ctx, playbackResp.Conns, &Output{
		Type: outputType,
		Payload: map[string]any{
			"current_time": playbackResp.CurrentTime,
		},
	})
}

type AttachSourceInput struct {
	RoomId   string `json:"room_id"`
	Location string `json:"location"`
	Label    string `json:"label"`
}

func (c controller) handleAttachSource(ctx context.Context, conn *websocket.Conn, input AttachSourceInput) error {
	connectionId := c.getConnectionIdFromCtx(ctx)

	attachSourceResp, err := c.roomService.AttachSource(ctx, &room.AttachSourceParams{
		RoomId:   input.RoomId,
		SenderId: connectionId,
		Location: input.Location,
		Label:    input.Label,
	})
	if err != nil {
		return c.handleServiceError(ctx, conn, err)
	}

	return c.broadcast(ctx, attachSourceResp.Conns, &Output{
		Type: "SOURCE_CHANGED",
		Payload: map[string]any{
			"location": attachSourceResp.Source.Location,
			"label":    attachSourceResp.Source.Label,
		},
	})
}

type ChatMessageInput struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

func (c controller) handleChatMessage(ctx context.Context, conn *websocket.Conn, input ChatMessageInput) error {
	connectionId := c.getConnectionIdFromCtx(ctx)

	chatResp, err := c.roomService.SendChatMessage(ctx, &room.SendChatMessageParams{
		RoomId:   input.RoomId,
		SenderId: connectionId,
		Text:     input.Text,
	})
	if err != nil {
		return c.handleServiceError(ctx, conn, err)
	}

	return c.broadcast(ctx, chatResp.Conns, &Output{
		Type:    "CHAT_MESSAGE",
		Payload: chatResp.Message,
	})
}
