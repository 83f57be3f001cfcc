package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn the registry writes through.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one registered socket. Writes are serialised per client.
type Client struct {
	ID     string
	UserID string

	conn    Conn
	writeMu sync.Mutex
}

func (c *Client) SendJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseWith sends a close frame with the given code and closes the socket.
func (c *Client) CloseWith(code int, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	return c.conn.Close()
}

// Manager tracks open chat sockets by user.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client
	logger  *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]*Client),
		logger:  logger,
	}
}

func (m *Manager) Connect(userID string, conn Conn) *Client {
	client := &Client{ID: uuid.NewString(), UserID: userID, conn: conn}

	m.mu.Lock()
	m.clients[client.ID] = client
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Client)
	}
	m.byUser[userID][client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("websocket connected", zap.String("user_id", userID), zap.String("client_id", client.ID), zap.Int("connections", total))
	return client
}

func (m *Manager) Disconnect(client *Client) {
	if client == nil {
		return
	}

	m.mu.Lock()
	if _, ok := m.clients[client.ID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, client.ID)
	if conns := m.byUser[client.UserID]; conns != nil {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(m.byUser, client.UserID)
		}
	}
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("websocket disconnected", zap.String("user_id", client.UserID), zap.String("client_id", client.ID), zap.Int("connections", total))
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) UserConnections(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

// SendToUser writes payload to every socket of a user and returns the
// number of successful writes.
func (m *Manager) SendToUser(userID string, payload any) int {
	m.mu.RLock()
	targets := make([]*Client, 0, len(m.byUser[userID]))
	for _, client := range m.byUser[userID] {
		targets = append(targets, client)
	}
	m.mu.RUnlock()

	sent := 0
	for _, client := range targets {
		if err := client.SendJSON(payload); err != nil {
			m.logger.Warn("websocket send failed", zap.String("client_id", client.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every socket with a going-away frame.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	targets := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		targets = append(targets, client)
	}
	m.mu.RUnlock()

	for _, client := range targets {
		_ = client.CloseWith(websocket.CloseGoingAway, "server shutting down")
		m.Disconnect(client)
	}
}
