// Package protocol defines the outbound channel the engine pushes updates to.
// Framing and transport live behind Channel implementations.
package protocol

import "errors"

var ErrChannelClosed = errors.New("protocol: channel closed")

// Channel is a live connection to one client session.
type Channel interface {
	Send(event string, data any) error
	Close() error
}

const (
	EventDialog             = "dialog"
	EventRoomSnapshot       = "room_snapshot"
	EventPlayerJoinedRoom   = "player_joined_room"
	EventPlayerLeftRoom     = "player_left_room"
	EventPlayerJoinedGame   = "player_joined_game"
	EventPlayerLeftGame     = "player_left_game"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventReadyStatus        = "ready_status"
	EventResetGame          = "reset_game"
	EventRoundStarted       = "round_started"
	EventRoundEnded         = "round_ended"
	EventChangePlayerTurn   = "change_player_turn"
	EventPlayerAction       = "player_action"
	EventMoneyChanged       = "money_changed"
	EventRebuyStarted       = "rebuy_started"
	EventRebuyEnded         = "rebuy_ended"
	EventPlayerWins         = "player_wins"
	EventGameEnded          = "game_ended"
	EventGamePaused         = "game_paused"
	EventGameResuming       = "game_resuming"
	EventGameResumed        = "game_resumed"
)

// Dialog codes sent with EventDialog on soft failures.
const (
	DialogWrongPassword     = "wrong_password"
	DialogRoomPrivate       = "room_private"
	DialogRoomFull          = "room_full"
	DialogDuplicateSession  = "duplicate_session"
	DialogCannotJoin        = "cannot_join"
	DialogNoFreeSeat        = "no_free_seat"
	DialogSeatTaken         = "seat_taken"
	DialogInsufficientFunds = "insufficient_funds"
	DialogBuyInTooHigh      = "buy_in_too_high"
	DialogBuyInTooLow       = "buy_in_too_low"
	DialogNotInRoom         = "not_in_room"
	DialogNotSeated         = "not_seated"
	DialogNotYourTurn       = "not_your_turn"
	DialogGamePaused        = "game_paused"
	DialogGameInProgress    = "game_in_progress"
	DialogInvalidAction     = "invalid_action"
	DialogNoRoom            = "no_room"
)

type Dialog struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
