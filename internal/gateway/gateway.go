package gateway

import "context"

// Messenger defines the interface for communication gateways.
type Messenger interface {
	// Start runs the message loop until ctx is done or the source closes.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Responder answers one chat message.
type Responder interface {
	Respond(ctx context.Context, chatID, text string) string
}

// StatusFunc renders the engine status for the /status command.
type StatusFunc func() string
