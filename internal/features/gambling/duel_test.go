package gambling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuelFullFlow(t *testing.T) {
	ctx := context.Background()
	s, fl, fs, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())
	fl.addAccount("bob", "cinema", 500, oldEnough())
	s.rng = fixedRand(0.1) // < 0.5: побеждает вызывающий

	c, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, c)

	// Ставка вызывающего уже в эскроу
	assert.Equal(t, int64(400), fl.balance("alice", "cinema"))
	assert.Equal(t, int64(500), fl.balance("bob", "cinema"))

	res, rej, err := s.AcceptChallenge(ctx, "bob", "alice", "cinema")
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, res)

	// Банк = 2 ставки, комиссия 5%, приз + комиссия == банк
	assert.Equal(t, int64(200), res.Pot)
	assert.Equal(t, int64(10), res.Rake)
	assert.Equal(t, int64(190), res.Prize)
	assert.Equal(t, res.Pot, res.Prize+res.Rake)
	assert.Equal(t, "alice", res.Winner)
	assert.Equal(t, "bob", res.Loser)

	// Победитель: 500 - 100 + 190; проигравший: 500 - 100
	assert.Equal(t, int64(590), fl.balance("alice", "cinema"))
	assert.Equal(t, int64(400), fl.balance("bob", "cinema"))

	// Статистика записана обоим
	require.Len(t, fs.games, 2)
	assert.Equal(t, int64(90), fs.games[0].net)
	assert.Equal(t, int64(-100), fs.games[1].net)
}

func TestDuelTargetWins(t *testing.T) {
	ctx := context.Background()
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())
	fl.addAccount("bob", "cinema", 500, oldEnough())
	s.rng = fixedRand(0.9) // >= 0.5: побеждает принявший вызов

	_, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)

	res, rej, err := s.AcceptChallenge(ctx, "bob", "alice", "cinema")
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, res)

	assert.Equal(t, "bob", res.Winner)
	assert.Equal(t, "alice", res.Loser)
	assert.Equal(t, int64(400), fl.balance("alice", "cinema"))
	assert.Equal(t, int64(590), fl.balance("bob", "cinema"))
}

func TestDuelSelfChallenge(t *testing.T) {
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())

	_, rej, err := s.CreateChallenge(context.Background(), "alice", "alice", "cinema", 100)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, int64(500), fl.balance("alice", "cinema"))
}

func TestDuelSecondPendingRejected(t *testing.T) {
	ctx := context.Background()
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())

	_, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)

	_, rej, err = s.CreateChallenge(ctx, "alice", "carol", "cinema", 100)
	require.NoError(t, err)
	require.NotNil(t, rej)
	// Второй вызов ничего не списал
	assert.Equal(t, int64(400), fl.balance("alice", "cinema"))
}

func TestDuelDeclineRefundsChallenger(t *testing.T) {
	ctx := context.Background()
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())
	fl.addAccount("bob", "cinema", 500, oldEnough())

	_, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, int64(400), fl.balance("alice", "cinema"))

	rej, err = s.DeclineChallenge(ctx, "bob", "alice", "cinema")
	require.NoError(t, err)
	require.Nil(t, rej)

	assert.Equal(t, int64(500), fl.balance("alice", "cinema"))
	assert.Equal(t, int64(500), fl.balance("bob", "cinema"))
}

func TestDuelExpiryRefunds(t *testing.T) {
	ctx := context.Background()
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())

	_, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)

	// Переводим часы за срок истечения
	base := s.now()
	s.now = func() time.Time { return base.Add(10 * time.Minute) }

	expired, err := s.ExpireChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(500), fl.balance("alice", "cinema"))

	// Повторная уборка ничего не находит
	expired, err = s.ExpireChallenges(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestDuelLateAcceptRejectedEvenBeforeSweep(t *testing.T) {
	ctx := context.Background()
	s, fl, _, _ := newTestService(t)
	fl.addAccount("alice", "cinema", 500, oldEnough())
	fl.addAccount("bob", "cinema", 500, oldEnough())

	_, rej, err := s.CreateChallenge(ctx, "alice", "bob", "cinema", 100)
	require.NoError(t, err)
	require.Nil(t, rej)

	// Срок вышел, но уборка ещё не прошла: принятие всё равно отвергается,
	// вызов помечается истёкшим и ставка возвращается
	base := s.now()
	s.now = func() time.Time { return base.Add(10 * time.Minute) }

	res, rej, err := s.AcceptChallenge(ctx, "bob", "alice", "cinema")
	require.NoError(t, err)
	require.Nil(t, res)
	require.NotNil(t, rej)

	assert.Equal(t, int64(500), fl.balance("alice", "cinema"))
	assert.Equal(t, int64(500), fl.balance("bob", "cinema"))
}

func TestDuelAcceptUnknownChallenge(t *testing.T) {
	s, fl, _, _ := newTestService(t)
	fl.addAccount("bob", "cinema", 500, oldEnough())

	res, rej, err := s.AcceptChallenge(context.Background(), "bob", "ghost", "cinema")
	require.NoError(t, err)
	require.Nil(t, res)
	require.NotNil(t, rej)
}
