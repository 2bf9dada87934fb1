// Package protocol defines the wire protocol for the host command bridge.
//
// Every frame on the wire is a single newline-free UTF-8 JSON object
// carrying at minimum a "type" discriminant. Messages answering a
// specific request echo that request's "requestId" unchanged; pushes
// not tied to a request omit it.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a wire message type.
type Kind string

// Client-to-server kinds.
const (
	KindAuth      Kind = "auth"       // Present a shared secret
	KindCommand   Kind = "command"    // Execute a shell command or builtin cd
	KindRead      Kind = "read"       // Read file contents
	KindWrite     Kind = "write"      // Write/create a file
	KindOpen      Kind = "open"       // Open path/URL with host default handler
	KindGetConfig Kind = "get_config" // Request a fresh telemetry snapshot
)

// Server-to-client kinds.
const (
	KindAuthSuccess Kind = "auth_success" // Handshake accepted
	KindAuthFail    Kind = "auth_fail"    // Handshake rejected, server closes
	KindConfig      Kind = "config"       // Telemetry snapshot
	KindCwd         Kind = "cwd"          // Current working directory
	KindOutput      Kind = "output"       // A chunk of stdout
	KindError       Kind = "error"        // A chunk of stderr, or an operation failure
	KindExit        Kind = "exit"         // Terminal: process finished
	KindFileContent Kind = "file_content" // Terminal: file read result
	KindSystem      Kind = "system"       // Terminal: generic success/status
)

// IsStreaming returns true for server kinds that accumulate into a
// pending request's buffer without resolving it.
func IsStreaming(k Kind) bool {
	return k == KindOutput || k == KindError
}

// IsTerminal returns true for server kinds that end a request's data
// stream and resolve the caller.
func IsTerminal(k Kind) bool {
	switch k {
	case KindExit, KindFileContent, KindSystem, KindConfig:
		return true
	default:
		return false
	}
}

// KnownRequestKind returns true if k is a valid client-to-server kind.
func KnownRequestKind(k Kind) bool {
	switch k {
	case KindAuth, KindCommand, KindRead, KindWrite, KindOpen, KindGetConfig:
		return true
	default:
		return false
	}
}

// Message is the wire envelope. Unused fields are omitted from the
// encoded frame.
type Message struct {
	Type      Kind   `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	// Request fields
	Token    string `json:"token,omitempty"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Target   string `json:"target,omitempty"`

	// Shared payload: command string, output chunk, file content,
	// error text, working directory.
	Content string `json:"content,omitempty"`

	// Exit status. Pointer so that exit code 0 survives encoding.
	Code *int `json:"code,omitempty"`

	// Telemetry fields (config messages)
	Platform string `json:"platform,omitempty"`
	IsAdmin  *bool  `json:"isAdmin,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Arch     string `json:"arch,omitempty"`
	Memory   uint64 `json:"memory,omitempty"`
}

// Encode serializes a message to a single JSON frame.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode deserializes a raw frame into the envelope form.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminant")
	}
	return &m, nil
}
