package botstest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/hostbridge"
)

// A reach-area objective across an empty map: the whole run is routing
// and travel, with the host crediting arrival.
func TestReachAreaQuestCrossesTheMap(t *testing.T) {
	h := NewHarness(t, scoutTrail(), fixtureCatalogs(), nil)
	scout := botEID(1)
	h.AddBot(BotSpec{
		EID: scout, Name: "scout", Class: classWarrior, Spec: specArms,
		MaxHealth: 8000, Pos: at(40, 0), Known: warriorKnown(),
		Quests: []uint32{questScoutTheRise},
	})

	h.RunTicks(900)

	require.EqualValues(t, 1, h.Progress(scout, questScoutTheRise, 0))

	var moves int
	for _, r := range h.Intents {
		if r.Intent.Kind == hostbridge.IntentMoveTo && r.Ack == hostbridge.AckAccepted {
			moves++
		}
	}
	require.Positive(t, moves)

	snap, ok := h.Player(scout)
	require.True(t, ok)
	dx := float64(snap.Pos.X - 200)
	dy := float64(snap.Pos.Y - 40)
	assert.Less(t, math.Hypot(dx, dy), 60.0, "the scout settles near the rise")
}
