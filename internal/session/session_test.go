package session

import (
	"context"
	"testing"

	"game-house/internal/backend"
	"game-house/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(t *testing.T, balance int64) (*User, *backend.Memory) {
	t.Helper()
	svc := backend.NewMemory(balance)
	u := NewUser("u1", "alice", backend.NewAccount(svc, "u1"))
	u.RefreshBalance(context.Background())
	return u, svc
}

func TestReconnectReturnsSamePlayer(t *testing.T) {
	u, _ := newTestUser(t, 1000)
	first := protocol.NewBuffer("s1", 10)
	p, reconnected := u.Connect("s1", first)
	require.False(t, reconnected)
	p.SetPlace(3)
	p.SetRoom("main", "room-1")
	p.SetMoneyInPlay(250)

	_, err := u.Disconnect("s1")
	require.NoError(t, err)
	assert.False(t, p.Connected())
	assert.Equal(t, []string{"s1"}, u.Disconnected())

	second := protocol.NewBuffer("s1", 10)
	again, reconnected := u.Connect("s1", second)
	assert.True(t, reconnected)
	assert.Same(t, p, again)
	assert.True(t, again.Connected())
	assert.Equal(t, 3, again.Place())
	assert.Equal(t, "room-1", again.RoomID())
	assert.Equal(t, int64(250), again.MoneyInPlay())
	assert.Empty(t, u.Disconnected())
}

func TestConnectReplacesLiveChannel(t *testing.T) {
	u, _ := newTestUser(t, 0)
	old := protocol.NewBuffer("s1", 10)
	u.Connect("s1", old)
	u.Connect("s1", protocol.NewBuffer("s1", 10))

	assert.ErrorIs(t, old.Send("x", nil), protocol.ErrChannelClosed)
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	u, _ := newTestUser(t, 0)
	p, _ := u.Connect("s1", nil)
	assert.False(t, p.Connected())
	p.Dialog(protocol.DialogRoomFull, "")
}

func TestFailingChannelIsDropped(t *testing.T) {
	u, _ := newTestUser(t, 0)
	ch := protocol.NewBuffer("s1", 10)
	p, _ := u.Connect("s1", ch)
	require.NoError(t, ch.Close())

	p.Send(protocol.EventRoomSnapshot, nil)
	assert.False(t, p.Connected())
}

func TestCommitAndRefundMoveBalance(t *testing.T) {
	ctx := context.Background()
	u, svc := newTestUser(t, 1000)
	p, _ := u.Connect("s1", nil)

	assert.Equal(t, int64(600), p.Commit(ctx, 600))
	assert.Equal(t, int64(400), u.Balance())
	assert.Equal(t, int64(0), p.Commit(ctx, 600))

	assert.Equal(t, int64(600), p.Refund(ctx, 600))
	assert.Equal(t, int64(1000), u.Balance())

	u.SetRestoring(true)
	assert.Equal(t, int64(5000), p.Commit(ctx, 5000))
	bal, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
}

func TestRemovePlayerReportsLast(t *testing.T) {
	u, _ := newTestUser(t, 0)
	u.Connect("s1", nil)
	u.Connect("s2", nil)

	assert.False(t, u.RemovePlayer("s1"))
	assert.True(t, u.RemovePlayer("s2"))
	_, err := u.Disconnect("s2")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestUserExportImport(t *testing.T) {
	u, _ := newTestUser(t, 700)
	p, _ := u.Connect("s1", protocol.NewBuffer("s1", 10))
	p.SetPlace(1)
	p.SetRoom("main", "r1")
	p.SetMoneyInPlay(300)
	u.Connect("s2", nil)
	_, err := u.Disconnect("s2")
	require.NoError(t, err)

	st := u.Export()
	assert.Equal(t, int64(700), st.Balance)
	require.Len(t, st.Players, 2)
	assert.Equal(t, []string{"s2"}, st.Disconnected)

	restored := NewUser(st.ID, st.Name, nil)
	players := restored.Import(st)
	require.Len(t, players, 2)
	assert.Equal(t, 1, players[0].Place())
	assert.Equal(t, "r1", players[0].RoomID())
	assert.Equal(t, []string{"s1", "s2"}, restored.Disconnected())
	assert.Equal(t, int64(700), restored.Balance())
	assert.Equal(t, st.Players, restored.Export().Players)
}
