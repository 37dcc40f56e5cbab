package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	headerPrefix = "Wr-"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c controller) mustHeader(r *http.Request, key string) (string, error) {
	value := r.Header.Get(headerPrefix + key)
	if value == "" {
		return "", fmt.Errorf("%s was not provided", key)
	}

	return value, nil
}

func (c controller) generateTimeBasedId() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, output *Output) error {
	if err := conn.WriteJSON(output); err != nil {
		return fmt.Errorf("failed to write to conn: %w", err)
	}

	return nil
}

func (c controller) broadcast(ctx context.Context, conns []*websocket.Conn, output *Output) error {
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, output); err != nil {
			// one dead viewer must not stop fan-out to the rest
			c.logger.DebugContext(ctx, "failed to write to conn", "error", err)
		}
	}

	return nil
}

func (c controller) writeError(ctx context.Context, conn *websocket.Conn, err error) error {
	return c.writeToConn(ctx, conn, &Output{
		Type: "ERROR",
		Payload: map[string]any{
			"message": err.Error(),
		},
	})
}
