package influence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

func newTestLedger() (*Ledger, *profile.Table) {
	profiles := profile.NewTable()
	ledger := NewLedger(profiles, zap.NewNop())
	ledger.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return ledger, profiles
}

func TestAwardUpdatesRunningTotal(t *testing.T) {
	ledger, profiles := newTestLedger()

	total := ledger.Award("alice", 10, ReasonAutoRegister, "🔥💧", true)
	assert.Equal(t, 10, total)
	total = ledger.Award("alice", -15, ReasonPenalty, "🔥💧", false)
	assert.Equal(t, -5, total)

	// Running total always equals the ledger sum.
	assert.Equal(t, ledger.Sum("alice"), profiles.Get("alice").Influence)
	assert.Len(t, ledger.Events("alice"), 2)
}

func TestScoreMayGoNegative(t *testing.T) {
	ledger, _ := newTestLedger()
	ledger.Award("bob", -15, ReasonPenalty, "", false)
	ledger.Award("bob", -15, ReasonPenalty, "", false)
	assert.Equal(t, -30, ledger.Score("bob"))
}

func TestRevertByChainRestoresBaseline(t *testing.T) {
	ledger, profiles := newTestLedger()
	key := chain.Key("🔥💧")

	// Author earns registration influence, adopters earn adoption influence.
	ledger.Award("author", 10, ReasonAutoRegister, key, true)
	ledger.Award("author", 1, ReasonReuse, key, true)
	ledger.Award("adopter", 2, ReasonAdoption, key, true)
	profiles.Get("adopter").ChainsAdopted[key] = 1

	// Unrelated influence must survive the revert.
	ledger.Award("author", 5, ReasonCorrection, "", false)

	ledger.RevertByChain(key)

	assert.Equal(t, 5, ledger.Score("author"))
	assert.Equal(t, 0, ledger.Score("adopter"))
	assert.NotContains(t, profiles.Get("adopter").ChainsAdopted, key)
	assert.Equal(t, ledger.Sum("author"), profiles.Get("author").Influence)
	assert.Equal(t, ledger.Sum("adopter"), profiles.Get("adopter").Influence)
}

func TestRevertByChainIsIdempotent(t *testing.T) {
	ledger, profiles := newTestLedger()
	key := chain.Key("🔥💧")

	ledger.Award("author", 10, ReasonAutoRegister, key, true)
	ledger.Award("adopter", 2, ReasonAdoption, key, true)
	profiles.Get("adopter").ChainsAdopted[key] = 1

	ledger.RevertByChain(key)
	authorScore := ledger.Score("author")
	adopterScore := ledger.Score("adopter")

	ledger.RevertByChain(key)

	assert.Equal(t, authorScore, ledger.Score("author"))
	assert.Equal(t, adopterScore, ledger.Score("adopter"))
}

func TestRevertByChainClawsBackUnrecordedAdoptions(t *testing.T) {
	ledger, profiles := newTestLedger()
	key := chain.Key("🔥💧")

	// Backfilled adopter state: ChainsAdopted is populated but no ledger
	// events exist. Reversal claws back at the adoption rate.
	p := profiles.Get("ghost")
	p.ChainsAdopted[key] = 3
	p.Influence = 6

	ledger.RevertByChain(key)

	assert.Equal(t, 0, p.Influence)
	assert.NotContains(t, p.ChainsAdopted, key)
}

func TestRevertLeavesIrreversibleEvents(t *testing.T) {
	ledger, _ := newTestLedger()
	key := chain.Key("🔥💧")

	ledger.Award("author", 5, ReasonCorrection, key, false)
	ledger.RevertByChain(key)

	require.Len(t, ledger.Events("author"), 1)
	assert.Equal(t, 5, ledger.Score("author"))
}
