package protocol

import "fmt"

// Request is the decoded form of a client-to-server frame. The agent
// dispatches on the concrete type with an exhaustive type switch, so
// adding a message kind is a compile-time-checked change.
type Request interface {
	requestKind() Kind
}

// Auth presents the shared secret for a connection.
type Auth struct {
	Token string
}

// Command asks the agent to execute a shell command or builtin cd.
type Command struct {
	RequestID string
	Content   string
}

// Read asks the agent for a file's full contents.
type Read struct {
	RequestID string
	Path      string
}

// Write asks the agent to create or overwrite a file.
type Write struct {
	RequestID string
	Filename  string
	Content   string
}

// Open asks the agent to open a path or URL with the platform's
// default handler. Fire-and-forget: no reply is produced.
type Open struct {
	Target string
}

// GetConfig requests a fresh telemetry snapshot.
type GetConfig struct {
	RequestID string
}

func (Auth) requestKind() Kind      { return KindAuth }
func (Command) requestKind() Kind   { return KindCommand }
func (Read) requestKind() Kind      { return KindRead }
func (Write) requestKind() Kind     { return KindWrite }
func (Open) requestKind() Kind      { return KindOpen }
func (GetConfig) requestKind() Kind { return KindGetConfig }

// UnknownKindError reports a frame whose type is not a client request
// kind. The listener logs and drops these without closing the
// connection.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown request kind %q", string(e.Kind))
}

// DecodeRequest parses a raw inbound frame into its concrete request
// type.
func DecodeRequest(data []byte) (Request, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case KindAuth:
		return Auth{Token: m.Token}, nil
	case KindCommand:
		if m.Content == "" {
			return nil, fmt.Errorf("command frame missing content")
		}
		return Command{RequestID: m.RequestID, Content: m.Content}, nil
	case KindRead:
		if m.Path == "" {
			return nil, fmt.Errorf("read frame missing path")
		}
		return Read{RequestID: m.RequestID, Path: m.Path}, nil
	case KindWrite:
		if m.Filename == "" {
			return nil, fmt.Errorf("write frame missing filename")
		}
		return Write{RequestID: m.RequestID, Filename: m.Filename, Content: m.Content}, nil
	case KindOpen:
		if m.Target == "" {
			return nil, fmt.Errorf("open frame missing target")
		}
		return Open{Target: m.Target}, nil
	case KindGetConfig:
		return GetConfig{RequestID: m.RequestID}, nil
	default:
		return nil, &UnknownKindError{Kind: m.Type}
	}
}
