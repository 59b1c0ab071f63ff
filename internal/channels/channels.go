// Package channels defines the error contract shared by the outbound
// delivery adapters (whatsapp, email, telegram).
package channels

import "fmt"

// Error reports a failed send on a single channel. Value is the
// channel-specific address the send targeted.
type Error struct {
	Channel string
	Value   string
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("channel %s: send to %s failed: %s", e.Channel, e.Value, e.Message)
}
