// ledgerctl is an operator-facing demo CLI: it exercises the hand replay
// engine, the settlement engine, the value ledger, the replay verifier,
// the session manager, and the sync service end to end against
// in-process sample data, printing JSON reports to stdout. Grounded on
// cmd/pokerctl's global-flag + subcommand dispatch style.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/decred/slog"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/config"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/events"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/ledger"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rake"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/replay"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/session"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/settlement"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/sidepot"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/snapshot"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/sync"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/verify"
)

var debug = flag.String("debug", "info", "Debug level for logging (trace, debug, info, warn, error)")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [global flags] <command>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  hand         Replay, settle, ledger, and verify one sample hand")
		fmt.Fprintln(os.Stderr, "  session      Exercise the session manager's connect/disconnect/reconnect lifecycle")
		fmt.Fprintln(os.Stderr, "  sync         Exercise the sync service's full-snapshot/incremental decision")
		fmt.Fprintln(os.Stderr, "  config       Print the default engine configuration")
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		flag.PrintDefaults()
	}
	flag.CommandLine.SetOutput(io.Discard)
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("ledgerctl")
	log.SetLevel(parseLevel(*debug))

	switch cmd := flag.Arg(0); cmd {
	case "hand":
		if err := runHand(log); err != nil {
			fatalErr(err)
		}
	case "session":
		if err := runSession(log); err != nil {
			fatalErr(err)
		}
	case "sync":
		if err := runSync(log); err != nil {
			fatalErr(err)
		}
	case "config":
		if err := runConfig(); err != nil {
			fatalErr(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return slog.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatalErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sampleHand is a three-handed, fold-to-one-winner hand: alice raises
// preflop, bob calls and folds the river, charlie folds preflop.
func sampleHand() []events.Event {
	return []events.Event{
		events.HandStart(events.HandStartData{
			HandID: "demo-hand-1",
			Players: []events.SeatPlayer{
				{PlayerID: "alice", SeatIndex: 0, StartingStack: 500},
				{PlayerID: "bob", SeatIndex: 1, StartingStack: 500},
				{PlayerID: "charlie", SeatIndex: 2, StartingStack: 500},
			},
			Dealer: 0, SBSeat: 1, BBSeat: 2, SBAmount: 5, BBAmount: 10,
		}),
		events.PostBlind(events.PostBlindData{PlayerID: "bob", Amount: 5, Kind: events.SmallBlind}),
		events.PostBlind(events.PostBlindData{PlayerID: "charlie", Amount: 10, Kind: events.BigBlind}),
		events.DealHole(events.DealHoleData{PlayerID: "alice"}),
		events.DealHole(events.DealHoleData{PlayerID: "bob"}),
		events.DealHole(events.DealHoleData{PlayerID: "charlie"}),
		events.Raise("alice", 20),
		events.Call("bob", 20),
		events.Fold("charlie"),
		events.StreetStart(events.StreetStartData{Street: events.Flop}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityFlop}),
		events.Check("bob"),
		events.Bet("alice", 15),
		events.Call("bob", 15),
		events.StreetStart(events.StreetStartData{Street: events.Turn}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityTurn}),
		events.Check("bob"),
		events.Bet("alice", 15),
		events.Call("bob", 15),
		events.StreetStart(events.StreetStartData{Street: events.River}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityRiver}),
		events.Check("bob"),
		events.Bet("alice", 50),
		events.Fold("bob"),
		events.HandEnd(events.HandEndData{Reason: events.ReasonAllFold, Winners: []events.Winner{{PlayerID: "alice", Amount: 160}}}),
	}
}

type handReport struct {
	Snapshot   *replay.Snapshot    `json:"snapshot"`
	Outcome    *settlement.Outcome `json:"outcome"`
	LedgerZero bool                `json:"ledger_zero_sum"`
	Verify     verify.Result       `json:"verify"`
}

func runHand(log slog.Logger) error {
	evs := sampleHand()

	snap, err := replay.Process(evs, len(evs)-1)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	var contributions []sidepot.Contribution
	for _, p := range snap.Players {
		contributions = append(contributions, sidepot.Contribution{
			PlayerID:          p.PlayerID,
			SeatIndex:         p.SeatIndex,
			TotalContribution: p.TotalContribution,
			IsAllIn:           p.AllIn,
			IsFolded:          p.Folded,
		})
	}

	cfg := config.Default()
	ldgr := ledger.New("club-demo", log)

	// Settlement debits each contributor for their stake (spec §4.6 step
	// 6); recognize that stake as already in play before settling, the
	// way a buy-in would have when the player first sat down.
	for _, c := range contributions {
		if c.TotalContribution == 0 {
			continue
		}
		if _, err := ldgr.Append(ledger.Record{
			HandID: snap.HandID, TableID: "table-demo", ClubID: "club-demo",
			PlayerID: c.PlayerID, Party: ledger.PartyPlayer, Kind: ledger.KindBuyIn,
			Amount: c.TotalContribution, Timestamp: 999,
		}); err != nil {
			return fmt.Errorf("buy-in: %w", err)
		}
	}

	engine := settlement.New(ldgr)
	outcome, err := engine.Settle(settlement.Request{
		HandID:            snap.HandID,
		TableID:           "table-demo",
		ClubID:            "club-demo",
		DealerSeat:        0,
		Contributions:     contributions,
		RakePolicy:        cfg.Rake.ToPolicy(),
		RakeContext:       rake.Context{PlayersInHand: 3, SawFlop: true, Uncontested: true},
		UncontestedWinner: snap.Winners[0].PlayerID,
		OddChipRule:       cfg.Settlement.OddChipRule,
		Timestamp:         1000,
	})
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	zeroSum, _ := ldgr.VerifyZeroSum()

	expectedStacks := map[string]int64{}
	for _, p := range snap.Players {
		expectedStacks[p.PlayerID] = p.Stack
	}
	expectedWinnings := map[string]int64{}
	for _, pot := range outcome.Pots {
		for _, w := range pot.Winners {
			expectedWinnings[w.PlayerID] += w.Amount
		}
	}

	verdict := verify.Verify(verify.RecordedHand{
		HandID:            snap.HandID,
		TableID:           "table-demo",
		ClubID:            "club-demo",
		Events:            evs,
		ExpectedFinalStacks: expectedStacks,
		ExpectedRake:      outcome.Rake,
		ExpectedWinnings:  expectedWinnings,
		RakePolicy:        cfg.Rake.ToPolicy(),
		RakeContext:       rake.Context{PlayersInHand: 3, SawFlop: true, Uncontested: true},
		OddChipRule:       cfg.Settlement.OddChipRule,
		Timestamp:         1000,
	})

	return printJSON(handReport{
		Snapshot:   snap,
		Outcome:    outcome,
		LedgerZero: zeroSum,
		Verify:     verdict,
	})
}

type sessionReport struct {
	Created     *session.Session `json:"created"`
	Terminated  []string         `json:"terminated_existing"`
	MissedAfterReconnect uint64  `json:"missed_after_reconnect"`
	Health      session.HealthSnapshot `json:"health"`
}

func runSession(log slog.Logger) error {
	mgr := session.NewManager(session.DefaultConfig(), log)

	sess, terminated := mgr.CreateSession("alice", "table-demo", 0, 1000)

	_ = mgr.UpdateVersion(sess.ID, 10)
	token := session.IssueResumeToken(sess.ID, sess.PlayerID, sess.TableID, sess.LastKnownVersion)
	if err := mgr.Disconnect(sess.ID, 1010); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	// Three more table versions land while alice is away.
	currentVersion := uint64(13)

	reconnected, err := mgr.Reconnect(token, 1020)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	missed := currentVersion - reconnected.LastKnownVersion

	return printJSON(sessionReport{
		Created:              sess,
		Terminated:           terminated,
		MissedAfterReconnect: missed,
		Health:               mgr.HealthSnapshot(),
	})
}

type syncReport struct {
	ConnectKind    sync.ResponseKind `json:"connect_response_kind"`
	AfterAckKind   sync.ResponseKind `json:"after_ack_response_kind"`
	DiffsReturned  int               `json:"diffs_returned"`
}

func runSync(log slog.Logger) error {
	sessions := session.NewManager(session.DefaultConfig(), log)
	svc := sync.NewService(sync.DefaultConfig(), sessions, log)
	svc.Start()
	defer svc.Stop()

	if _, err := svc.InitializeTable("table-demo", 50, 20, 1000); err != nil {
		return fmt.Errorf("initialize table: %w", err)
	}

	result, err := svc.ConnectClient("alice", "table-demo", "cli-demo", 1000)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	connectKind := result.InitialSync.Kind

	applyChip := func(timestamp int64) error {
		_, err := svc.ApplyStateChange("table-demo", []snapshot.Change{
			{Path: "pot", Op: snapshot.Increment, Value: int64(10)},
		}, "chip_move", "dealer", timestamp)
		return err
	}
	if err := applyChip(1001); err != nil {
		return fmt.Errorf("apply state change: %w", err)
	}
	if err := svc.HandleStateAck(result.Session.ID, 1, 1, 1002); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if err := applyChip(1003); err != nil {
		return fmt.Errorf("apply state change: %w", err)
	}
	if err := applyChip(1004); err != nil {
		return fmt.Errorf("apply state change: %w", err)
	}

	resp, err := svc.HandleSyncRequest(result.Session.ID, 1, 1)
	if err != nil {
		return fmt.Errorf("sync request: %w", err)
	}

	return printJSON(syncReport{
		ConnectKind:   connectKind,
		AfterAckKind:  resp.Kind,
		DiffsReturned: len(resp.Diffs),
	})
}

func runConfig() error {
	return printJSON(config.Default())
}
