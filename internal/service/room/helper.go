package room

import (
	"context"

	"github.com/gorilla/websocket"
)

// getConns resolves member ids to live connections. A member whose connection
// is already gone is skipped: the reconciler will catch up with it on its own
// disconnect event.
func (s *service) getConns(ctx context.Context, connectionIds []string) []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		conn, err := s.connRepo.GetConn(connectionId)
		if err != nil {
			s.logger.DebugContext(ctx, "failed to get conn", "connection_id", connectionId, "error", err)
			continue
		}

		conns = append(conns, conn)
	}

	return conns
}
