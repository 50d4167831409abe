package protocol

import (
	"encoding/json"
	"errors"

	"github.com/cory-johannsen/shardgate/internal/gateerr"
)

// Client-visible failure reasons.
const (
	ReasonAPIError       = "api error"
	ReasonUnauthorized   = "unauthorized"
	ReasonNotFound       = "not found"
	ReasonConflict       = "conflict"
	ReasonCharacterLimit = "character limit reached"
)

// Reply is one outbound frame.
type Reply struct {
	Type   string `json:"type,omitempty"`
	Error  bool   `json:"error"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// AuthResponseData is the payload of an auth-response frame.
type AuthResponseData struct {
	Auth    bool   `json:"auth"`
	Session string `json:"session,omitempty"`
	Secret  string `json:"secret,omitempty"`
}

// LoadCharacterData is the payload of a load-character-response frame.
type LoadCharacterData struct {
	Level   string `json:"level"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ChatData is the payload of a chat-message frame.
type ChatData struct {
	Type    ChatType `json:"type"`
	From    string   `json:"from"`
	Message string   `json:"message"`
}

// AuthResponse builds an auth-response frame.
func AuthResponse(auth bool, session, secret string) Reply {
	return Reply{Type: TypeAuthResponse, Data: AuthResponseData{Auth: auth, Session: session, Secret: secret}}
}

// LoadCharacterResponse builds a load-character-response frame.
func LoadCharacterResponse(level, address string, port int) Reply {
	return Reply{Type: TypeLoadCharacterResponse, Data: LoadCharacterData{Level: level, Address: address, Port: port}}
}

// ChatMessage builds a chat-message frame.
func ChatMessage(scope ChatType, from, message string) Reply {
	return Reply{Type: TypeChatMessage, Data: ChatData{Type: scope, From: from, Message: message}}
}

// ErrorReply builds the generic failure frame for err.
func ErrorReply(err error) Reply {
	return Reply{Error: true, Reason: Reason(err)}
}

// Encode marshals a reply for the wire.
func Encode(r Reply) ([]byte, error) {
	return json.Marshal(r)
}

// Reason maps an error to the reason shown to clients. Internal causes are
// never exposed; anything outside the taxonomy becomes ReasonAPIError.
func Reason(err error) string {
	switch {
	case errors.Is(err, gateerr.ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, gateerr.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, gateerr.ErrCharacterCap):
		return ReasonCharacterLimit
	case errors.Is(err, gateerr.ErrConflict):
		return ReasonConflict
	}
	return ReasonAPIError
}
