package ws

import (
	"context"
	"encoding/json"
	"errors"

	"game-house/internal/house"
	"game-house/internal/lobby"
	"game-house/internal/session"

	"github.com/rs/zerolog/log"
)

// Dispatch decodes one command frame and runs it for sessionID. Transports
// other than websocket reuse it for their command endpoints.
func Dispatch(ctx context.Context, h *house.House, sid string, msg []byte) CommandResult {
	var base baseMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		return result(base, false, ErrCodeInvalidMessage, nil)
	}
	var (
		ok   bool
		err  error
		data any
	)
	switch base.Type {
	case CmdFindRoom:
		var m FindRoomMessage
		if json.Unmarshal(msg, &m) != nil {
			return result(base, false, ErrCodeInvalidMessage, nil)
		}
		mode, valid := lobby.ParseMode(m.Mode)
		if !valid {
			return result(base, false, ErrCodeInvalidMode, nil)
		}
		var res lobby.FindResult
		res, ok, err = h.FindRoom(ctx, sid, m.LobbyID, mode, lobby.Criteria{Kind: m.Kind, ConfigID: m.ConfigID, BuyIn: m.BuyIn})
		if err == nil {
			data = res
		}
	case CmdJoinRoom:
		var m JoinRoomMessage
		if json.Unmarshal(msg, &m) != nil || m.RoomID == "" {
			return result(base, false, ErrCodeInvalidMessage, nil)
		}
		ok, err = h.JoinRoom(ctx, sid, m.LobbyID, m.RoomID, m.Password)
	case CmdLeaveRoom:
		ok, err = h.LeaveRoom(ctx, sid)
	case CmdSit:
		var m SitMessage
		if json.Unmarshal(msg, &m) != nil {
			return result(base, false, ErrCodeInvalidMessage, nil)
		}
		seat := session.NoSeat
		if m.Seat != nil {
			seat = *m.Seat
		}
		ok, err = h.Sit(ctx, sid, seat, m.Money)
	case CmdStand:
		ok, err = h.Stand(ctx, sid)
	case CmdReady:
		var m ReadyMessage
		if json.Unmarshal(msg, &m) != nil {
			return result(base, false, ErrCodeInvalidMessage, nil)
		}
		ok, err = h.Ready(sid, m.Ready)
	case CmdAction:
		var m ActionMessage
		if json.Unmarshal(msg, &m) != nil || m.Action == "" {
			return result(base, false, ErrCodeInvalidMessage, nil)
		}
		ok, err = h.Act(sid, m.Action, m.Amount)
	default:
		return result(base, false, ErrCodeUnknownCommand, nil)
	}
	if err != nil {
		log.Debug().Err(err).Str("session_id", sid).Str("command", base.Type).Msg("command failed")
		return result(base, false, errorCode(err), nil)
	}
	return result(base, ok, "", data)
}

func result(base baseMessage, ok bool, code string, data any) CommandResult {
	return CommandResult{
		Type:            "command_result",
		ProtocolVersion: ProtocolVersion,
		RequestID:       base.RequestID,
		Command:         base.Type,
		Ok:              ok,
		Error:           code,
		Data:            data,
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, house.ErrUnknownSession):
		return ErrCodeUnknownSession
	case errors.Is(err, house.ErrUnknownLobby):
		return ErrCodeLobbyNotFound
	case errors.Is(err, house.ErrUnknownRoom):
		return ErrCodeRoomNotFound
	case errors.Is(err, house.ErrSessionConflict):
		return ErrCodeSessionConflict
	case errors.Is(err, house.ErrStopped):
		return ErrCodeShuttingDown
	}
	return ErrCodeInternal
}
