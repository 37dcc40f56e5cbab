package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/watchroom/server/internal/service/room"
	"github.com/watchroom/server/pkg/ctxlogger"
)

// ws upgrades the request to a websocket connection, assigns it an opaque
// connection id and serves inbound messages until the connection drops. The
// disconnect reconciler always runs on the way out, so room membership never
// outlives the socket.
func (c controller) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	connectionId := uuid.NewString()
	ctx := context.WithValue(r.Context(), connectionIdCtxKey, connectionId)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", connectionId))

	if err := c.roomService.Connect(ctx, &room.ConnectParams{
		Conn:         conn,
		ConnectionId: connectionId,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect", "error", err)
		conn.Close()
		return
	}
	defer c.disconnect(ctx, connectionId)

	// the upload collaborator needs the connection id to pass the guard, so
	// the client has to learn it
	if err := c.writeToConn(ctx, conn, &Output{
		Type: "CONNECTED",
		Payload: map[string]any{
			"connection_id": connectionId,
		},
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to write connected", "error", err)
		return
	}

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "websocket connection closed", "error", err)
	}
}

func (c controller) disconnect(ctx context.Context, connectionId string) {
	disconnectResp, err := c.roomService.Disconnect(ctx, &room.DisconnectParams{
		ConnectionId: connectionId,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect", "error", err)
		return
	}

	for _, update := range disconnectResp.Updates {
		if update.Closed {
			c.broadcast(ctx, update.Conns, &Output{
				Type: "ROOM_CLOSED",
				Payload: map[string]any{
					"reason": "host disconnected",
				},
			})
			continue
		}

		c.broadcast(ctx, update.Conns, &Output{
			Type: "MEMBER_LEFT",
			Payload: map[string]any{
				"connection_id": update.LeftConnectionId,
			},
		})
	}
}
