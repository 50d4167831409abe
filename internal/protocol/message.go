// Package protocol defines the persistent-connection message envelopes.
//
// Inbound frames are {type, args}; outbound frames are {type, error, reason, data}.
// Inbound frames are decoded into a closed set of message kinds so that the
// dispatcher never works with untyped maps.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
)

// Inbound message types.
const (
	TypeAuth            = "auth"
	TypeLoadCharacter   = "load-character"
	TypeSendChatMessage = "send-chat-message"
)

// Outbound message types.
const (
	TypeAuthResponse          = "auth-response"
	TypeLoadCharacterResponse = "load-character-response"
	TypeChatMessage           = "chat-message"
)

// InboundTypes lists every inbound message type Decode accepts.
func InboundTypes() []string {
	return []string{TypeAuth, TypeLoadCharacter, TypeSendChatMessage}
}

// ErrUnknownType is returned by Decode when the envelope is well formed but
// names a message type or chat scope this gateway does not handle. Such
// frames are dropped without a reply.
var ErrUnknownType = errors.New("unknown message type")

// ChatType is the delivery scope of a chat message.
type ChatType string

const (
	ChatGlobal  ChatType = "Global"
	ChatTeam    ChatType = "Team"
	ChatWhisper ChatType = "Whisper"
)

// ParseChatType normalises a wire chat type. The legacy "Wisper" spelling is
// accepted as ChatWhisper.
//
// Postcondition: Returns the ChatType and true, or ("", false) when unrecognised.
func ParseChatType(s string) (ChatType, bool) {
	switch s {
	case string(ChatGlobal):
		return ChatGlobal, true
	case string(ChatTeam):
		return ChatTeam, true
	case string(ChatWhisper), "Wisper":
		return ChatWhisper, true
	}
	return "", false
}

// Message is one decoded inbound frame.
type Message interface {
	// Type returns the wire type of the message.
	Type() string
}

// AuthRequest asks the gateway to log a player in over the live connection.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Type implements Message.
func (AuthRequest) Type() string { return TypeAuth }

// LoadCharacterRequest asks for the shard coordinates of a character.
type LoadCharacterRequest struct {
	Character string `json:"character"`
}

// Type implements Message.
func (LoadCharacterRequest) Type() string { return TypeLoadCharacter }

// SendChatRequest asks the gateway to relay a chat message.
type SendChatRequest struct {
	Scope   ChatType
	Message string
}

// Type implements Message.
func (SendChatRequest) Type() string { return TypeSendChatMessage }

type envelope struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

type chatArgs struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decode parses one inbound frame.
//
// Postcondition: Returns a Message, or an error matching gateerr.ErrProtocol for
// malformed frames, or ErrUnknownType for well-formed frames of an unknown type.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, gateerr.Protocolf("decoding envelope: %v", err)
	}
	if env.Type == "" {
		return nil, gateerr.Protocolf("envelope has no type")
	}

	switch env.Type {
	case TypeAuth:
		var m AuthRequest
		if err := decodeArgs(env.Args, &m); err != nil {
			return nil, err
		}
		if strings.TrimSpace(m.Username) == "" || m.Password == "" {
			return nil, gateerr.Protocolf("auth requires username and password")
		}
		return m, nil

	case TypeLoadCharacter:
		var m LoadCharacterRequest
		if err := decodeArgs(env.Args, &m); err != nil {
			return nil, err
		}
		m.Character = strings.TrimSpace(m.Character)
		if m.Character == "" {
			return nil, gateerr.Protocolf("load-character requires a character name")
		}
		if len(m.Character) > character.MaxNameLength {
			return nil, gateerr.Protocolf("character name exceeds %d bytes", character.MaxNameLength)
		}
		return m, nil

	case TypeSendChatMessage:
		var a chatArgs
		if err := decodeArgs(env.Args, &a); err != nil {
			return nil, err
		}
		scope, ok := ParseChatType(a.Type)
		if !ok {
			return nil, fmt.Errorf("%w: chat type %q", ErrUnknownType, a.Type)
		}
		return SendChatRequest{Scope: scope, Message: a.Message}, nil
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return gateerr.Protocolf("envelope has no args")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return gateerr.Protocolf("decoding args: %v", err)
	}
	return nil
}
