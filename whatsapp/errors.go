package whatsapp

import "errors"

var (
	// ErrSessionLost means the browser profile is logged out: the web client
	// shows its QR landing page. Recovering needs the operator to scan again.
	ErrSessionLost = errors.New("whatsapp: session lost, scan the QR code to log in again")

	// ErrNotReady means the client has not finished loading.
	ErrNotReady = errors.New("whatsapp: client not ready")

	// ErrChatNotFound means no chat with the requested display name could be opened.
	ErrChatNotFound = errors.New("whatsapp: chat not found")

	// ErrComposeNotFound means the message input of the open chat is missing.
	ErrComposeNotFound = errors.New("whatsapp: compose box not found")
)
