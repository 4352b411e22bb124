// Package session holds users and the per-connection players they own.
package session

import (
	"context"
	"sync"

	"game-house/internal/protocol"

	"github.com/rs/zerolog/log"
)

// NoSeat is the place index of a player that is not seated in a game.
const NoSeat = -1

// Player is one session of a User. While disconnected it has no channel and
// every Send is a no-op; its seat and room placement are kept for reconnection.
type Player struct {
	id   string
	user *User

	mu          sync.Mutex
	ch          protocol.Channel
	place       int
	moneyInPlay int64
	lobbyID     string
	roomID      string
}

func newPlayer(id string, user *User) *Player {
	return &Player{id: id, user: user, place: NoSeat}
}

// ID is the session id.
func (p *Player) ID() string     { return p.id }
func (p *Player) User() *User    { return p.user }
func (p *Player) UserID() string { return p.user.ID() }
func (p *Player) Name() string   { return p.user.Name() }

func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil
}

// Send pushes an event to the client. A failing channel is dropped, which
// turns the player into a disconnected one.
func (p *Player) Send(event string, data any) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Send(event, data); err != nil {
		log.Debug().Err(err).Str("session_id", p.id).Str("event", event).Msg("send failed")
		p.mu.Lock()
		if p.ch == ch {
			p.ch = nil
		}
		p.mu.Unlock()
	}
}

// Dialog sends a soft-failure notice.
func (p *Player) Dialog(code, message string) {
	p.Send(protocol.EventDialog, protocol.Dialog{Code: code, Message: message})
}

// Attach binds a live channel and returns the one it replaced, if any.
func (p *Player) Attach(ch protocol.Channel) protocol.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.ch
	p.ch = ch
	return prev
}

// Channel is the live channel, nil while disconnected.
func (p *Player) Channel() protocol.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch
}

// Detach drops the channel and returns it.
func (p *Player) Detach() protocol.Channel {
	return p.Attach(nil)
}

func (p *Player) Place() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.place
}

func (p *Player) SetPlace(seat int) {
	p.mu.Lock()
	p.place = seat
	p.mu.Unlock()
}

func (p *Player) Seated() bool { return p.Place() != NoSeat }

func (p *Player) MoneyInPlay() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moneyInPlay
}

func (p *Player) SetMoneyInPlay(v int64) {
	p.mu.Lock()
	p.moneyInPlay = v
	p.mu.Unlock()
}

// AddMoney changes the money in play by delta, never going below zero, and
// returns the new amount.
func (p *Player) AddMoney(delta int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moneyInPlay += delta
	if p.moneyInPlay < 0 {
		p.moneyInPlay = 0
	}
	return p.moneyInPlay
}

func (p *Player) LobbyID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lobbyID
}

func (p *Player) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

func (p *Player) SetRoom(lobbyID, roomID string) {
	p.mu.Lock()
	p.lobbyID = lobbyID
	p.roomID = roomID
	p.mu.Unlock()
}

func (p *Player) ClearRoom() { p.SetRoom("", "") }

// Commit moves amount from the user's account into play and returns what the
// backend confirmed. While the user is restoring no backend call is made.
func (p *Player) Commit(ctx context.Context, amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	if p.user.Restoring() {
		return amount
	}
	return p.user.account.Decrease(ctx, amount, p.RoomID())
}

// Refund returns amount to the user's account.
func (p *Player) Refund(ctx context.Context, amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	if p.user.Restoring() {
		return amount
	}
	return p.user.account.Increase(ctx, amount, p.RoomID())
}

// PlayerState is the persisted form of a Player.
type PlayerState struct {
	SessionID   string `json:"session_id"`
	Place       int    `json:"place"`
	MoneyInPlay int64  `json:"money_in_play"`
	LobbyID     string `json:"lobby_id,omitempty"`
	RoomID      string `json:"room_id,omitempty"`
}

func (p *Player) Export() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlayerState{
		SessionID:   p.id,
		Place:       p.place,
		MoneyInPlay: p.moneyInPlay,
		LobbyID:     p.lobbyID,
		RoomID:      p.roomID,
	}
}

func (p *Player) importState(s PlayerState) {
	p.mu.Lock()
	p.place = s.Place
	p.moneyInPlay = s.MoneyInPlay
	p.lobbyID = s.LobbyID
	p.roomID = s.RoomID
	p.mu.Unlock()
}
