package domain

import (
	"context"
)

// Event interfaces
type MatchEventPublisher interface {
	PublishMatchEvent(ctx context.Context, event *MatchEvent) error
}

// Connection is one signaling client. Send must not block on network I/O.
type Connection interface {
	ID() string
	Send(message interface{}) error
	Close() error
}

type ConnectionManager interface {
	RegisterConnection(conn Connection) error
	UnregisterConnection(connectionID string) bool
	JoinMatch(code, connectionID string) error
	GetConnectionsForMatch(code string) []Connection
	BroadcastToMatch(code string, message interface{}) error
	SendToConnection(connectionID string, message interface{}) error
	ConnectionCount() int
	CloseAll()
}
