package controller

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/watchroom/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.wsRequestIdWSMw())
	mux.Use(c.loggerWSMw())
	mux.OnError(func(ctx context.Context, conn *websocket.Conn, err error) {
		c.logger.WarnContext(ctx, "failed to handle websocket message", "error", err)
	})

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	// room
	wsrouter.Handle(mux, "CREATE_ROOM", c.handleCreateRoom)
	wsrouter.Handle(mux, "JOIN_ROOM", c.handleJoinRoom)

	// playback, host-only
	wsrouter.Handle(mux, "PLAY", c.handlePlay)
	wsrouter.Handle(mux, "PAUSE", c.handlePause)
	wsrouter.Handle(mux, "SEEK", c.handleSeek)
	wsrouter.Handle(mux, "ATTACH_SOURCE", c.handleAttachSource)

	// chat
	wsrouter.Handle(mux, "CHAT_MESSAGE", c.handleChatMessage)

	return mux
}
