package ws

import "game-house/internal/protocol"

const ProtocolVersion = "1.0"

// Inbound command types.
const (
	CmdFindRoom  = "find_room"
	CmdJoinRoom  = "join_room"
	CmdLeaveRoom = "leave_room"
	CmdSit       = "sit"
	CmdStand     = "stand"
	CmdReady     = "ready"
	CmdAction    = "action"
)

// Result error codes. Rejections reported through a dialog event come back
// with ok=false and no error.
const (
	ErrCodeInvalidMessage  = "invalid_message"
	ErrCodeUnknownCommand  = "unknown_command"
	ErrCodeInvalidMode     = "invalid_mode"
	ErrCodeUnknownSession  = "unknown_session"
	ErrCodeLobbyNotFound   = "lobby_not_found"
	ErrCodeRoomNotFound    = "room_not_found"
	ErrCodeSessionConflict = "session_conflict"
	ErrCodeShuttingDown    = "shutting_down"
	ErrCodeInternal        = "internal_error"
)

type baseMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

type FindRoomMessage struct {
	LobbyID  string `json:"lobby_id,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ConfigID string `json:"config_id,omitempty"`
	BuyIn    int64  `json:"buy_in,omitempty"`
}

type JoinRoomMessage struct {
	LobbyID  string `json:"lobby_id,omitempty"`
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

// SitMessage takes any free seat when Seat is omitted.
type SitMessage struct {
	Seat  *int  `json:"seat,omitempty"`
	Money int64 `json:"money"`
}

type ReadyMessage struct {
	Ready bool `json:"ready"`
}

type ActionMessage struct {
	Action string `json:"action"`
	Amount int64  `json:"amount"`
}

type CommandResult struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Command         string `json:"command"`
	Ok              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	Data            any    `json:"data,omitempty"`
}

// Welcome is the first frame of every accepted connection.
type Welcome struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	Reconnected     bool   `json:"reconnected"`
	Balance         int64  `json:"balance"`
}

// EventFrame carries one engine event to the client.
type EventFrame struct {
	Type string `json:"type"`
	protocol.Event
}
