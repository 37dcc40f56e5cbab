package room

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"
)

type SendChatMessageParams struct {
	RoomId   string
	SenderId string
	Text     string
}

type SendChatMessageResponse struct {
	Message ChatMessage
	// all members including the sender: clients render from the
	// authoritative echo to keep ordering consistent
	Conns []*websocket.Conn
}

// SendChatMessage relays a chat message to every member of the room. Nothing
// is persisted.
func (s *service) SendChatMessage(ctx context.Context, params *SendChatMessageParams) (SendChatMessageResponse, error) {
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return SendChatMessageResponse{}, ErrEmptyMessage
	}

	r, ok := s.getRoom(params.RoomId)
	if !ok {
		return SendChatMessageResponse{}, ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return SendChatMessageResponse{}, ErrRoomNotFound
	}
	senderRole := r.role(params.SenderId)
	memberIds := r.memberIds()
	r.mu.Unlock()

	return SendChatMessageResponse{
		Message: ChatMessage{
			Text: text,
			Role: senderRole,
			Time: s.now().UnixMilli(),
		},
		Conns: s.getConns(ctx, memberIds),
	}, nil
}
