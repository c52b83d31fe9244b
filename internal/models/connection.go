package models

import "gorm.io/gorm"

// ConnectionStatus is the stored status of a connection row. The schema
// reserves "declined" but the client deletes rows on decline/cancel so a
// re-request is possible immediately; see ConnectionState for the
// client-side view.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionDeclined ConnectionStatus = "declined"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection represents a connection (friend) request between two users.
// At most one live row may exist per unordered user pair; writers enforce
// this by deleting prior rows for the pair before inserting a new request.
type Connection struct {
	gorm.Model
	RequesterID uint             `json:"requester_id" gorm:"index"`
	ReceiverID  uint             `json:"receiver_id" gorm:"index"`
	Status      ConnectionStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
}

// ConnectionState is the connection as seen from one side.
type ConnectionState string

const (
	StateNone            ConnectionState = "none"
	StateSentPending     ConnectionState = "sent_pending"
	StateReceivedPending ConnectionState = "received_pending"
	StateAccepted        ConnectionState = "accepted"
	StateBlocked         ConnectionState = "blocked"
)

// StateFor derives the viewer-relative state from a connection row.
// A nil row means no live connection exists.
func StateFor(conn *Connection, viewerID uint) ConnectionState {
	if conn == nil {
		return StateNone
	}
	switch conn.Status {
	case ConnectionBlocked:
		return StateBlocked
	case ConnectionAccepted:
		return StateAccepted
	case ConnectionPending:
		if conn.RequesterID == viewerID {
			return StateSentPending
		}
		return StateReceivedPending
	}
	return StateNone
}

// CreateConnectionRequest defines the payload for sending a connection request
type CreateConnectionRequest struct {
	ReceiverID uint `json:"receiver_id" validate:"required"`
}
