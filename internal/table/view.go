package table

// SeatView is what clients see of one seat.
type SeatView struct {
	Seat        int    `json:"seat"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	MoneyInPlay int64  `json:"money_in_play"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
	Playing     bool   `json:"playing"`
	Rebuying    bool   `json:"rebuying"`
}

type GameView struct {
	ID            string     `json:"id"`
	InProgress    bool       `json:"in_progress"`
	Ended         bool       `json:"ended"`
	Paused        bool       `json:"paused"`
	ResumingPause bool       `json:"resuming_pause"`
	Round         int        `json:"round"`
	TurnSeat      int        `json:"turn_seat"`
	PrevTurnSeat  int        `json:"previous_turn_seat"`
	MaxSeats      int        `json:"max_seats"`
	Seats         []SeatView `json:"seats"`
}

func (g *Game) seatView(seat int) SeatView {
	p, ok := g.seats[seat]
	if !ok {
		return SeatView{Seat: seat}
	}
	_, rebuying := g.rebuy[seat]
	return SeatView{
		Seat:        seat,
		SessionID:   p.ID(),
		UserID:      p.UserID(),
		Name:        p.Name(),
		MoneyInPlay: p.MoneyInPlay(),
		Connected:   p.Connected(),
		Ready:       g.ready[p.ID()],
		Playing:     g.playing[seat],
		Rebuying:    rebuying,
	}
}

func (g *Game) View() GameView {
	v := GameView{
		ID:            g.id,
		InProgress:    g.inProgress,
		Ended:         g.ended,
		Paused:        g.paused,
		ResumingPause: g.resumingPause,
		Round:         g.roundIndex,
		TurnSeat:      g.turnSeat,
		PrevTurnSeat:  g.prevTurnSeat,
		MaxSeats:      g.config().MaxSeats,
		Seats:         make([]SeatView, 0, len(g.seats)),
	}
	for _, seat := range g.seatNumbers() {
		v.Seats = append(v.Seats, g.seatView(seat))
	}
	return v
}
