// Package ledger implements the append-only, hash-chained Value Ledger
// (spec §4.5). Every entry commits atomically: sequence, prev_hash, and
// hash are computed by the ledger itself, never supplied by callers, so
// the chain cannot be forged from outside this package.
package ledger

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/decred/slog"
)

// PartyType distinguishes who an entry's amount is attributed to.
type PartyType string

const (
	PartyPlayer   PartyType = "player"
	PartyTable    PartyType = "table"
	PartyClub     PartyType = "club"
	PartyPlatform PartyType = "platform"
)

// Kind is the ledger entry's transaction category.
type Kind string

const (
	KindBuyIn         Kind = "buy_in"
	KindBet           Kind = "bet"
	KindPotWin        Kind = "pot_win"
	KindRakeCollected Kind = "rake_collected"
	KindReturnUncalled Kind = "return_uncalled"
	KindCashOut       Kind = "cash_out"
)

// Genesis is the prev_hash value of the first entry in any chain.
const Genesis = "genesis"

// Entry is one immutable ledger record. Hash and PrevHash are computed
// by Append and never set by callers.
type Entry struct {
	Sequence  uint64
	HandID    string
	TableID   string
	ClubID    string
	PlayerID  string
	Party     PartyType
	Kind      Kind
	Amount    int64 // signed: positive credits the party, negative debits
	Timestamp int64 // caller-supplied clock value, never time.Now()
	PrevHash  string
	Hash      string
}

// Record is the caller-facing request to append an entry; everything
// except the chain-derived fields.
type Record struct {
	HandID    string
	TableID   string
	ClubID    string
	PlayerID  string
	Party     PartyType
	Kind      Kind
	Amount    int64
	Timestamp int64
}

// NegativeBalanceError reports that appending an entry would drive a
// party's running balance below zero.
type NegativeBalanceError struct {
	PlayerID string
	Party    PartyType
	Balance  int64
	Delta    int64
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("ledger: entry would drive %s/%s balance %d by %d below zero",
		e.Party, e.PlayerID, e.Balance, e.Delta)
}

// Ledger is a single hash-chained append log, scoped to one club (spec
// invariant I8: club isolation — entries from different clubs never
// share a chain).
type Ledger struct {
	log      slog.Logger
	mu       sync.Mutex
	clubID   string
	entries  []Entry
	balances map[string]int64 // key: party+":"+playerID; pooled parties are recorded with an empty playerID
}

// New creates an empty ledger scoped to clubID.
func New(clubID string, log slog.Logger) *Ledger {
	return &Ledger{
		log:      log,
		clubID:   clubID,
		balances: make(map[string]int64),
	}
}

func balanceKey(party PartyType, playerID string) string {
	return string(party) + ":" + playerID
}

// Append commits one entry to the chain. Rejects the entry with
// NegativeBalanceError if it would drive a PartyPlayer's running balance
// below zero (spec invariant I4 — no negative quantities); other party
// types (table/club/platform) are pooled accounts and are not bounded at
// zero.
func (l *Ledger) Append(r Record) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.ClubID != l.clubID {
		return Entry{}, fmt.Errorf("ledger: record club %q does not match ledger club %q", r.ClubID, l.clubID)
	}

	key := balanceKey(r.Party, r.PlayerID)
	newBalance := l.balances[key] + r.Amount
	if r.Party == PartyPlayer && newBalance < 0 {
		return Entry{}, &NegativeBalanceError{
			PlayerID: r.PlayerID,
			Party:    r.Party,
			Balance:  l.balances[key],
			Delta:    r.Amount,
		}
	}

	prevHash := Genesis
	if len(l.entries) > 0 {
		prevHash = l.entries[len(l.entries)-1].Hash
	}

	entry := Entry{
		Sequence:  uint64(len(l.entries)),
		HandID:    r.HandID,
		TableID:   r.TableID,
		ClubID:    r.ClubID,
		PlayerID:  r.PlayerID,
		Party:     r.Party,
		Kind:      r.Kind,
		Amount:    r.Amount,
		Timestamp: r.Timestamp,
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	l.entries = append(l.entries, entry)
	l.balances[key] = newBalance

	if l.log != nil {
		l.log.Debugf("ledger: appended seq=%d kind=%s party=%s/%s amount=%d",
			entry.Sequence, entry.Kind, entry.Party, entry.PlayerID, entry.Amount)
	}

	return entry, nil
}

// hashEntry computes the deterministic FNV-1a hash of an entry's fields
// chained with its predecessor's hash. Non-cryptographic by design —
// the chain exists to detect accidental corruption and out-of-band
// tampering, not to resist a motivated adversary with compute.
func hashEntry(e Entry) string {
	h := fnv.New64a()
	fields := []string{
		strconv.FormatUint(e.Sequence, 10),
		e.HandID, e.TableID, e.ClubID, e.PlayerID,
		string(e.Party), string(e.Kind),
		strconv.FormatInt(e.Amount, 10),
		strconv.FormatInt(e.Timestamp, 10),
		e.PrevHash,
	}
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Balance returns the current running balance for a player.
func (l *Ledger) Balance(party PartyType, playerID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey(party, playerID)]
}

// ByPlayer returns all entries touching playerID, in sequence order.
func (l *Ledger) ByPlayer(playerID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out
}

// ByTable returns all entries for tableID, in sequence order.
func (l *Ledger) ByTable(tableID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.TableID == tableID {
			out = append(out, e)
		}
	}
	return out
}

// ByHand returns all entries for handID, in sequence order.
func (l *Ledger) ByHand(handID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.HandID == handID {
			out = append(out, e)
		}
	}
	return out
}

// ByParty returns all entries for a given party type.
func (l *Ledger) ByParty(party PartyType) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Party == party {
			out = append(out, e)
		}
	}
	return out
}

// Range returns entries with sequence in [from, to] inclusive.
func (l *Ledger) Range(from, to uint64) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Sequence >= from && e.Sequence <= to {
			out = append(out, e)
		}
	}
	return out
}

// VerifyZeroSum checks spec invariant I7: the sum of every entry's
// amount across all parties is zero (chips move between parties, none
// are created or destroyed). KindBuyIn and KindCashOut entries record
// chips crossing the ledger's boundary and are left out of the sum.
func (l *Ledger) VerifyZeroSum() (bool, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, e := range l.entries {
		if e.Kind == KindBuyIn || e.Kind == KindCashOut {
			continue
		}
		sum += e.Amount
	}
	return sum == 0, sum
}

// IntegrityReport is the result of walking the hash chain over a
// sequence range.
type IntegrityReport struct {
	Intact   bool
	BrokenAt *uint64 // first sequence whose hash does not match its recomputation, if any
}

// VerifyIntegrity recomputes each entry's hash from its stored fields
// and predecessor hash over [from, to], reporting the first break. A
// break indicates an entry was mutated out of band, since Append is the
// only code path that ever sets Hash.
func (l *Ledger) VerifyIntegrity(from, to uint64) IntegrityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	expectedPrev := Genesis
	if from > 0 && int(from) <= len(l.entries) {
		expectedPrev = l.entries[from-1].Hash
	}

	for _, e := range l.entries {
		if e.Sequence < from || e.Sequence > to {
			continue
		}
		if e.PrevHash != expectedPrev {
			seq := e.Sequence
			return IntegrityReport{Intact: false, BrokenAt: &seq}
		}
		if hashEntry(e) != e.Hash {
			seq := e.Sequence
			return IntegrityReport{Intact: false, BrokenAt: &seq}
		}
		expectedPrev = e.Hash
	}
	return IntegrityReport{Intact: true}
}

// Len returns the number of entries in the chain.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of every entry in sequence order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// mutateHashForTest directly corrupts an entry's stored hash, used only
// to exercise VerifyIntegrity's break detection (spec scenario S6).
func (l *Ledger) mutateHashForTest(sequence uint64, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].Sequence == sequence {
			l.entries[i].Hash = hash
			return
		}
	}
}
