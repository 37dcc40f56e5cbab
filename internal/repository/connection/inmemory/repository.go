package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/watchroom/server/internal/repository/connection"
)

type repo struct {
	connList map[*websocket.Conn]string
	idList   map[string]*websocket.Conn
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		connList: make(map[*websocket.Conn]string),
		idList:   make(map[string]*websocket.Conn),
	}
}

func (r *repo) Add(conn *websocket.Conn, connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connList[conn] != "" || r.idList[connectionId] != nil {
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = connectionId
	r.idList[connectionId] = conn

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectionId, ok := r.connList[conn]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, connectionId)

	return nil
}

func (r *repo) RemoveByConnectionId(connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.idList[connectionId]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, connectionId)

	return nil
}

func (r *repo) GetConn(connectionId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[connectionId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) GetConnectionId(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionId, ok := r.connList[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return connectionId, nil
}
