package protocol

// Constructors for server-to-client messages. Responses that answer a
// specific request carry that request's id unchanged; pass an empty id
// for unsolicited pushes.

// NewAuthSuccess reports a successful handshake.
func NewAuthSuccess() *Message {
	return &Message{Type: KindAuthSuccess}
}

// NewAuthFail reports a rejected handshake. The server closes the
// connection after sending it.
func NewAuthFail() *Message {
	return &Message{Type: KindAuthFail}
}

// NewCwd reports the connection's current working directory.
func NewCwd(requestID, dir string) *Message {
	return &Message{Type: KindCwd, RequestID: requestID, Content: dir}
}

// NewOutput carries one chunk of a process's stdout.
func NewOutput(requestID, chunk string) *Message {
	return &Message{Type: KindOutput, RequestID: requestID, Content: chunk}
}

// NewErrorChunk carries one chunk of a process's stderr, or an
// operation failure description.
func NewErrorChunk(requestID, text string) *Message {
	return &Message{Type: KindError, RequestID: requestID, Content: text}
}

// NewExit is the terminal message for a command request.
func NewExit(requestID string, code int) *Message {
	return &Message{Type: KindExit, RequestID: requestID, Code: &code}
}

// NewFileContent is the terminal message for a read request.
func NewFileContent(requestID, content string) *Message {
	return &Message{Type: KindFileContent, RequestID: requestID, Content: content}
}

// NewSystem is the terminal message for requests that resolve with a
// generic success/status line.
func NewSystem(requestID, text string) *Message {
	return &Message{Type: KindSystem, RequestID: requestID, Content: text}
}

// NewConfig carries a telemetry snapshot. Tagged when answering a
// get_config request, untagged when pushed right after authorization.
func NewConfig(requestID, platform, arch, hostname string, isAdmin bool, memory uint64) *Message {
	return &Message{
		Type:      KindConfig,
		RequestID: requestID,
		Platform:  platform,
		Arch:      arch,
		Hostname:  hostname,
		IsAdmin:   &isAdmin,
		Memory:    memory,
	}
}
