package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Request
		wantErr bool
	}{
		{
			name:  "auth",
			frame: `{"type":"auth","token":"s3cret"}`,
			want:  Auth{Token: "s3cret"},
		},
		{
			name:  "command",
			frame: `{"type":"command","content":"ls -la","requestId":"r1"}`,
			want:  Command{RequestID: "r1", Content: "ls -la"},
		},
		{
			name:  "read",
			frame: `{"type":"read","path":"notes.txt","requestId":"r2"}`,
			want:  Read{RequestID: "r2", Path: "notes.txt"},
		},
		{
			name:  "write",
			frame: `{"type":"write","filename":"out.txt","content":"hello","requestId":"r3"}`,
			want:  Write{RequestID: "r3", Filename: "out.txt", Content: "hello"},
		},
		{
			name:  "open",
			frame: `{"type":"open","target":"https://example.com"}`,
			want:  Open{Target: "https://example.com"},
		},
		{
			name:  "get_config tagged",
			frame: `{"type":"get_config","requestId":"r4"}`,
			want:  GetConfig{RequestID: "r4"},
		},
		{
			name:  "get_config untagged",
			frame: `{"type":"get_config"}`,
			want:  GetConfig{},
		},
		{
			name:    "command missing content",
			frame:   `{"type":"command","requestId":"r5"}`,
			wantErr: true,
		},
		{
			name:    "read missing path",
			frame:   `{"type":"read","requestId":"r6"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			frame:   `{"requestId":"r7"}`,
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			frame:   `{"type":"command"`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tc.frame))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DecodeRequest(%s) expected error, got %#v", tc.frame, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest(%s) error = %v", tc.frame, err)
			}
			if got != tc.want {
				t.Errorf("DecodeRequest(%s) = %#v, want %#v", tc.frame, got, tc.want)
			}
		})
	}
}

func TestDecodeRequest_UnknownKind(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"reboot"}`))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}

	var unknownErr *UnknownKindError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownKindError, got %T: %v", err, err)
	}
	if unknownErr.Kind != "reboot" {
		t.Errorf("UnknownKindError.Kind = %q, want %q", unknownErr.Kind, "reboot")
	}
}

func TestEncode_ExitCodeZeroSurvives(t *testing.T) {
	data, err := Encode(NewExit("r1", 0))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if !strings.Contains(string(data), `"code":0`) {
		t.Errorf("exit frame must carry code 0 explicitly, got: %s", data)
	}
}

func TestEncode_NoNewlines(t *testing.T) {
	msgs := []*Message{
		NewAuthSuccess(),
		NewCwd("", "/home/user"),
		NewOutput("r1", "line one\nline two\n"),
		NewConfig("r2", "linux", "amd64", "box", true, 8<<30),
	}

	for _, m := range msgs {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", m.Type, err)
		}
		if strings.Contains(string(data), "\n") && !strings.Contains(string(data), `\n`) {
			t.Errorf("frame for %s contains a raw newline: %s", m.Type, data)
		}
	}
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	orig := NewConfig("r9", "darwin", "arm64", "laptop", false, 16<<30)

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if m.Type != KindConfig || m.RequestID != "r9" || m.Platform != "darwin" {
		t.Errorf("roundtrip mismatch: %#v", m)
	}
	if m.IsAdmin == nil || *m.IsAdmin {
		t.Errorf("isAdmin false must survive roundtrip, got %v", m.IsAdmin)
	}
	if m.Memory != 16<<30 {
		t.Errorf("memory = %d, want %d", m.Memory, uint64(16<<30))
	}
}

func TestKindClassification(t *testing.T) {
	streaming := []Kind{KindOutput, KindError}
	for _, k := range streaming {
		if !IsStreaming(k) {
			t.Errorf("IsStreaming(%s) = false, want true", k)
		}
		if IsTerminal(k) {
			t.Errorf("IsTerminal(%s) = true, want false", k)
		}
	}

	terminal := []Kind{KindExit, KindFileContent, KindSystem, KindConfig}
	for _, k := range terminal {
		if !IsTerminal(k) {
			t.Errorf("IsTerminal(%s) = false, want true", k)
		}
		if IsStreaming(k) {
			t.Errorf("IsStreaming(%s) = true, want false", k)
		}
	}

	// cwd and the handshake results neither stream nor terminate.
	for _, k := range []Kind{KindCwd, KindAuthSuccess, KindAuthFail} {
		if IsStreaming(k) || IsTerminal(k) {
			t.Errorf("kind %s must be neither streaming nor terminal", k)
		}
	}
}
