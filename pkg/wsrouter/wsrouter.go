package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

type ErrorHandlerFunc func(ctx context.Context, conn *websocket.Conn, err error)

type WSRouter struct {
	routes      map[string]HandlerFunc[any]
	decoders    map[string]func(json.RawMessage) (any, error)
	middlewares []Middleware
	onError     ErrorHandlerFunc
}

func New() *WSRouter {
	return &WSRouter{
		routes:   make(map[string]HandlerFunc[any]),
		decoders: make(map[string]func(json.RawMessage) (any, error)),
	}
}

func (r *WSRouter) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *WSRouter) OnError(handler ErrorHandlerFunc) {
	r.onError = handler
}

// Handle registers a typed handler for the given message type. The payload is
// decoded into T before the middleware chain runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.decoders[messageType] = func(payload json.RawMessage) (any, error) {
		var input T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		return input, nil
	}
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, payload any) error {
		input, ok := payload.(T)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", payload)
		}

		return handler(ctx, conn, input)
	}
}

// ServeConn reads messages from the connection until it fails and dispatches
// each one to its registered handler. Handler errors are reported to the
// OnError handler and do not stop the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			conn.WriteJSON(map[string]string{"error": "unknown message type"})
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)

		input, err := r.decoders[msg.Type](msg.Payload)
		if err != nil {
			if r.onError != nil {
				r.onError(msgCtx, conn, err)
			}
			continue
		}

		h := handler
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			h = r.middlewares[i](h)
		}

		if err := h(msgCtx, conn, input); err != nil {
			if r.onError != nil {
				r.onError(msgCtx, conn, err)
			}
		}
	}
}
