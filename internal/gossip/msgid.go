package gossip

import "github.com/google/uuid"

// NewMsgID returns a fresh message sequence id.
func NewMsgID() string {
	return uuid.NewString()
}
