package botstest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/sim/orders"
)

// The witch's hex is catalogued as a dangerous magic debuff; the priest
// cleanses it off itself as often as the rate limit allows.
func TestDispelCleansesHex(t *testing.T) {
	h := NewHarness(t, hexHollow(), fixtureCatalogs(), nil)
	cleric := botEID(1)
	h.AddBot(BotSpec{
		EID: cleric, Name: "cleric", Class: classPriest, Spec: specHoly,
		Group: 5, MaxHealth: 6000, Pos: at(5, 0), Known: priestKnown(),
	})

	h.RunTicks(600)

	casts := h.AcceptedCasts(spellDispel)
	require.GreaterOrEqual(t, len(casts), 2)
	for _, r := range casts {
		assert.Equal(t, cleric, r.Intent.Target, "the hex always lands on the cleric")
	}

	done := h.OutcomesOf(orders.AssignDispel, orders.ResultFulfilled)
	require.GreaterOrEqual(t, len(done), 2)
	for _, o := range done {
		assert.Equal(t, cleric, o.Target)
		assert.Equal(t, auraHex, o.Spell, "the outcome names the cleansed aura")
	}
}
