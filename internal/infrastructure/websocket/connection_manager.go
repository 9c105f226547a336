package websocket

import (
	"fmt"
	"sync"

	"nocaps-server/internal/domain"
	"nocaps-server/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]domain.Connection            // connectionID -> connection
	groups      map[string]map[string]domain.Connection // match code -> connectionID -> connection
	memberships map[string]map[string]struct{}          // connectionID -> match codes
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]domain.Connection),
		groups:      make(map[string]map[string]domain.Connection),
		memberships: make(map[string]map[string]struct{}),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.Connection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, exists := cm.connections[conn.ID()]; exists {
		return fmt.Errorf("connection %s already registered", conn.ID())
	}
	cm.connections[conn.ID()] = conn

	cm.log.Debug("Connection registered", "connection_id", conn.ID())
	return nil
}

// UnregisterConnection drops the connection and all its group memberships.
// It reports whether the connection was registered.
func (cm *ConnectionManager) UnregisterConnection(connectionID string) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, exists := cm.connections[connectionID]; !exists {
		return false
	}
	delete(cm.connections, connectionID)

	for code := range cm.memberships[connectionID] {
		if group, exists := cm.groups[code]; exists {
			delete(group, connectionID)
			if len(group) == 0 {
				delete(cm.groups, code)
			}
		}
	}
	delete(cm.memberships, connectionID)

	cm.log.Debug("Connection unregistered", "connection_id", connectionID)
	return true
}

// JoinMatch adds a registered connection to the broadcast group of a match.
func (cm *ConnectionManager) JoinMatch(code, connectionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	conn, exists := cm.connections[connectionID]
	if !exists {
		return domain.ErrConnectionNotFound
	}

	if cm.groups[code] == nil {
		cm.groups[code] = make(map[string]domain.Connection)
	}
	cm.groups[code][connectionID] = conn

	if cm.memberships[connectionID] == nil {
		cm.memberships[connectionID] = make(map[string]struct{})
	}
	cm.memberships[connectionID][code] = struct{}{}
	return nil
}

func (cm *ConnectionManager) GetConnectionsForMatch(code string) []domain.Connection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.Connection
	if group, exists := cm.groups[code]; exists {
		for _, conn := range group {
			connections = append(connections, conn)
		}
	}

	return connections
}

func (cm *ConnectionManager) BroadcastToMatch(code string, message interface{}) error {
	connections := cm.GetConnectionsForMatch(code)

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Warn("Failed to send message", "connection_id", conn.ID(),
				"match_code", code, "error", err)
			// Continue to other connections
		}
	}

	return nil
}

func (cm *ConnectionManager) SendToConnection(connectionID string, message interface{}) error {
	cm.mutex.RLock()
	conn, exists := cm.connections[connectionID]
	cm.mutex.RUnlock()

	if !exists {
		return domain.ErrConnectionNotFound
	}
	return conn.Send(message)
}

func (cm *ConnectionManager) ConnectionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.connections)
}

// CloseAll closes every registered connection. Their read loops report the
// disconnects afterwards.
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.RLock()
	connections := make([]domain.Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		connections = append(connections, conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range connections {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "connection_id", conn.ID(), "error", err)
		}
	}
	cm.log.Info("Closed connections", "count", len(connections))
}
