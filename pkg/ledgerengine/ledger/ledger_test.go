package ledger

import (
	"os"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

func testLogger() slog.Logger {
	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("test")
	log.SetLevel(slog.LevelError)
	return log
}

func TestAppendBuildsHashChain(t *testing.T) {
	l := New("club1", testLogger())

	e1, err := l.Append(Record{ClubID: "club1", PlayerID: "alice", Party: PartyPlayer, Kind: KindBuyIn, Amount: 500, Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(0), e1.Sequence)
	require.Equal(t, Genesis, e1.PrevHash)

	e2, err := l.Append(Record{ClubID: "club1", PlayerID: "alice", Party: PartyPlayer, Kind: KindBet, Amount: -100, Timestamp: 2})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e2.Sequence)
	require.Equal(t, e1.Hash, e2.PrevHash)
	require.NotEqual(t, e1.Hash, e2.Hash)
}

func TestAppendRejectsNegativeBalance(t *testing.T) {
	l := New("club1", testLogger())
	_, err := l.Append(Record{ClubID: "club1", PlayerID: "bob", Party: PartyPlayer, Kind: KindBet, Amount: -50, Timestamp: 1})
	require.Error(t, err)
	var nbErr *NegativeBalanceError
	require.ErrorAs(t, err, &nbErr)
}

func TestAppendRejectsWrongClub(t *testing.T) {
	l := New("club1", testLogger())
	_, err := l.Append(Record{ClubID: "club2", PlayerID: "alice", Party: PartyPlayer, Kind: KindBuyIn, Amount: 100, Timestamp: 1})
	require.Error(t, err)
}

func TestVerifyZeroSum(t *testing.T) {
	l := New("club1", testLogger())
	_, _ = l.Append(Record{ClubID: "club1", PlayerID: "alice", Party: PartyPlayer, Kind: KindBuyIn, Amount: 500, Timestamp: 1})
	_, _ = l.Append(Record{ClubID: "club1", PlayerID: "alice", Party: PartyPlayer, Kind: KindBet, Amount: -100, Timestamp: 2})
	_, _ = l.Append(Record{ClubID: "club1", TableID: "t1", Party: PartyTable, Kind: KindBet, Amount: 100, Timestamp: 2})

	ok, sum := l.VerifyZeroSum()
	require.True(t, ok)
	require.Equal(t, int64(0), sum)
}

// TestVerifyIntegrityDetectsBreak exercises scenario S6: seven entries
// appended, entry at sequence 5 is corrupted, VerifyIntegrity must report
// broken_at = 5.
func TestVerifyIntegrityDetectsBreak(t *testing.T) {
	l := New("club1", testLogger())
	for i := 0; i < 7; i++ {
		_, err := l.Append(Record{
			ClubID: "club1", TableID: "t1", Party: PartyTable, Kind: KindBet,
			Amount: int64(i + 1), Timestamp: int64(i),
		})
		require.NoError(t, err)
	}

	report := l.VerifyIntegrity(0, 6)
	require.True(t, report.Intact)

	l.mutateHashForTest(5, "deadbeef")

	report = l.VerifyIntegrity(0, 6)
	require.False(t, report.Intact)
	require.NotNil(t, report.BrokenAt)
	require.Equal(t, uint64(5), *report.BrokenAt)
}

func TestQueriesByPlayerTableHand(t *testing.T) {
	l := New("club1", testLogger())
	_, _ = l.Append(Record{ClubID: "club1", HandID: "h1", TableID: "t1", PlayerID: "alice", Party: PartyPlayer, Kind: KindBuyIn, Amount: 500, Timestamp: 1})
	_, _ = l.Append(Record{ClubID: "club1", HandID: "h2", TableID: "t1", PlayerID: "bob", Party: PartyPlayer, Kind: KindBuyIn, Amount: 500, Timestamp: 2})

	require.Len(t, l.ByPlayer("alice"), 1)
	require.Len(t, l.ByTable("t1"), 2)
	require.Len(t, l.ByHand("h1"), 1)
	require.Len(t, l.ByParty(PartyPlayer), 2)
	require.Len(t, l.Range(0, 0), 1)
	require.Len(t, l.Range(0, 1), 2)
}
