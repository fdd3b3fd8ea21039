package botstest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The farming loop end to end: route to the ghouls, pull with the arms
// rotation, credit the kills, then loot the corpses for quest scales.
func TestKillQuestFarmsAndLoots(t *testing.T) {
	h := NewHarness(t, provingGrounds(), fixtureCatalogs(), nil)
	grunt := botEID(1)
	h.AddBot(BotSpec{
		EID: grunt, Name: "grunt", Class: classWarrior, Spec: specArms,
		MaxHealth: 8000, Pos: at(30, 0), Known: warriorKnown(),
		Quests: []uint32{questThinTheMire},
	})

	h.RunTicks(1600)

	require.EqualValues(t, 3, h.Progress(grunt, questThinTheMire, 0), "kill objective")
	require.EqualValues(t, 2, h.Progress(grunt, questThinTheMire, 1), "scale objective")
	assert.GreaterOrEqual(t, len(h.Kills), 3)
	assert.NotEmpty(t, h.AcceptedCasts(spellMortalStrike))
	assert.NotEmpty(t, h.AcceptedInteracts(), "corpse loot rides an interact")

	for _, e := range h.Ticks {
		require.False(t, e.Skipped, "lockstep boundaries never skip a round")
	}
}
