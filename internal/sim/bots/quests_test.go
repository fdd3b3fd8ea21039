package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warband.ai/internal/hostbridge"
	"warband.ai/internal/sim/orders"
)

const (
	questWolves = uint32(700)
	questRelics = uint32(701)
)

func addQuest(host *fakeHost, info hostbridge.QuestInfo) {
	host.mu.Lock()
	host.quests[info.Quest] = info
	host.mu.Unlock()
}

func killQuest(id, entry, required uint32) hostbridge.QuestInfo {
	return hostbridge.QuestInfo{
		Quest: id, Title: "Thinning the Pack", QuestLevel: 60, LevelMin: 55,
		Objectives: []hostbridge.QuestObjectiveInfo{
			{Kind: hostbridge.ObjectiveKill, Required: required, CreatureEntry: entry},
		},
	}
}

func collectQuest(id uint32) hostbridge.QuestInfo {
	return hostbridge.QuestInfo{
		Quest: id, Title: "Buried Relics", QuestLevel: 60, LevelMin: 55,
		Objectives: []hostbridge.QuestObjectiveInfo{
			{Kind: hostbridge.ObjectiveCollect, Required: 3, Source: hostbridge.ItemSourceObjectLoot,
				ObjectEntry: 5000, Item: 42},
		},
	}
}

func questAgent(t *testing.T, e *Engine, host *fakeHost, log ...uint32) (*Agent, *stepCtx) {
	t.Helper()
	cfg := warriorConfig(1)
	cfg.QuestLog = log
	a := addAgent(t, e, cfg)
	return a, moveCtx(e, a, player(1, pos(0, 0)))
}

func TestQuestUpdateTracksVelocityAndCompletion(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	a, sc := questAgent(t, e, host, questWolves)

	a.quest.update(sc)
	key := objKey{quest: questWolves, index: 0}
	st := a.quest.state(key)
	assert.Equal(t, uint32(5), st.required)
	assert.Zero(t, st.current)

	host.setProgress(1, questWolves, 0, 2)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.Equal(t, uint32(2), st.current)
	assert.Equal(t, 1.0, st.velocity, "two kills over one second, smoothed from zero")
	assert.Equal(t, 3.0, st.etaSeconds())

	host.setProgress(1, questWolves, 0, 5)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.Equal(t, objComplete, st.status)
	assert.Equal(t, "complete", st.status.String())
	assert.Zero(t, st.etaSeconds())
}

func TestQuestUpdateHonorsPollCadence(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	a, sc := questAgent(t, e, host, questWolves)

	a.quest.update(sc)
	host.setProgress(1, questWolves, 0, 2)
	a.quest.update(sc)

	st := a.quest.state(objKey{quest: questWolves, index: 0})
	assert.Zero(t, st.current, "second update inside the poll window reads nothing")

	host.advance(500)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.Equal(t, uint32(2), st.current)
}

func TestQuestStagnationMarksStuckOnce(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	a, sc := questAgent(t, e, host, questWolves)

	a.quest.update(sc)
	host.setProgress(1, questWolves, 0, 2)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))

	st := a.quest.state(objKey{quest: questWolves, index: 0})
	require.False(t, st.stuck)

	host.advance(30001)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.True(t, st.stuck)
	assert.Equal(t, 1, st.failures)

	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.Equal(t, 1, st.failures, "an already-stuck objective is not recounted")

	host.setProgress(1, questWolves, 0, 3)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))
	assert.False(t, st.stuck)
	assert.Zero(t, st.failures)
}

func TestQuestRegressionIsAFreshCounter(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	a, sc := questAgent(t, e, host, questWolves)

	a.quest.update(sc)
	host.setProgress(1, questWolves, 0, 3)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))

	host.setProgress(1, questWolves, 0, 1)
	host.advance(1000)
	a.quest.update(moveCtx(e, a, sc.self))

	st := a.quest.state(objKey{quest: questWolves, index: 0})
	assert.Equal(t, uint32(1), st.current)
	assert.Equal(t, objActive, st.status)
	assert.False(t, st.stuck)
}

func TestSetLogDropsAbandonedObjectives(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	addQuest(host, collectQuest(questRelics))
	a, sc := questAgent(t, e, host, questWolves, questRelics)
	a.quest.update(sc)

	a.quest.setLog([]uint32{questRelics})

	_, wolvesKept := a.quest.objectives[objKey{quest: questWolves, index: 0}]
	assert.False(t, wolvesKept)
	_, relicsKept := a.quest.objectives[objKey{quest: questRelics, index: 0}]
	assert.True(t, relicsKept)
}

func TestRouteObjectiveKinds(t *testing.T) {
	e, host := newTestEngine(t)
	_, sc := questAgent(t, e, host)
	key := objKey{quest: questWolves, index: 0}

	cases := []struct {
		name string
		info hostbridge.QuestInfo
		obj  hostbridge.QuestObjectiveInfo
		want orders.SubGoal
		ok   bool
	}{
		{
			name: "kill routes to engage",
			obj:  hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveKill, CreatureEntry: 100},
			want: orders.SubGoal{Kind: orders.SubGoalEngage, CreatureEntry: 100},
			ok:   true,
		},
		{
			name: "kill with a starting item uses the item",
			info: hostbridge.QuestInfo{StartItem: 99},
			obj:  hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveKill, CreatureEntry: 100},
			want: orders.SubGoal{Kind: orders.SubGoalUseItemOn, Item: 99, CreatureEntry: 100},
			ok:   true,
		},
		{
			name: "collect from objects routes to interact",
			obj: hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveCollect,
				Source: hostbridge.ItemSourceObjectLoot, ObjectEntry: 5000, Item: 42},
			want: orders.SubGoal{Kind: orders.SubGoalInteract, ObjectEntry: 5000, Item: 42},
			ok:   true,
		},
		{
			name: "collect from corpses routes to engage",
			obj: hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveCollect,
				Source: hostbridge.ItemSourceCreatureLoot, CreatureEntry: 200, Item: 43},
			want: orders.SubGoal{Kind: orders.SubGoalEngage, CreatureEntry: 200, Item: 43},
			ok:   true,
		},
		{
			name: "use object routes to interact",
			obj:  hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveUseObject, ObjectEntry: 6000},
			want: orders.SubGoal{Kind: orders.SubGoalInteract, ObjectEntry: 6000},
			ok:   true,
		},
		{
			name: "reach area routes to navigate",
			obj: hostbridge.QuestObjectiveInfo{Kind: hostbridge.ObjectiveReachArea,
				Area: pos(100, 100), AreaRadius: 25},
			want: orders.SubGoal{Kind: orders.SubGoalNavigate, Dest: pos(100, 100), Radius: 25},
			ok:   true,
		},
		{
			name: "unknown kind is unroutable",
			obj:  hostbridge.QuestObjectiveInfo{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := routeObjective(sc, tc.info, key, tc.obj)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			tc.want.Quest = key.quest
			tc.want.IssuedTick = sc.tick
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextSubGoalDefersStuckObjectives(t *testing.T) {
	e, host := newTestEngine(t)
	addQuest(host, killQuest(questWolves, 100, 5))
	addQuest(host, collectQuest(questRelics))
	a, sc := questAgent(t, e, host, questWolves, questRelics)

	sg, ok := a.quest.nextSubGoal(sc)
	require.True(t, ok)
	assert.Equal(t, orders.SubGoalEngage, sg.Kind)
	assert.Equal(t, questWolves, sg.Quest)

	a.quest.state(objKey{quest: questWolves, index: 0}).stuck = true
	sg, ok = a.quest.nextSubGoal(sc)
	require.True(t, ok)
	assert.Equal(t, questRelics, sg.Quest, "a fresh objective outranks a stuck one")

	a.quest.state(objKey{quest: questRelics, index: 0}).stuck = true
	sg, ok = a.quest.nextSubGoal(sc)
	require.True(t, ok)
	assert.Equal(t, questWolves, sg.Quest, "with everything stuck the first is retried")

	a.quest.state(objKey{quest: questWolves, index: 0}).status = objComplete
	sg, ok = a.quest.nextSubGoal(sc)
	require.True(t, ok)
	assert.Equal(t, questRelics, sg.Quest)

	a.quest.state(objKey{quest: questRelics, index: 0}).status = objComplete
	_, ok = a.quest.nextSubGoal(sc)
	assert.False(t, ok)
}

func TestNextGiverHubBacksOffExponentially(t *testing.T) {
	e, host := newTestEngine(t)
	a, sc := questAgent(t, e, host)

	_, ok := a.quest.nextGiverHub(sc)
	require.False(t, ok)
	assert.Equal(t, int64(2000), a.quest.giverBackoffMS)

	// Inside the backoff window nothing is retried and nothing doubles.
	_, ok = a.quest.nextGiverHub(sc)
	require.False(t, ok)
	assert.Equal(t, int64(2000), a.quest.giverBackoffMS)

	for _, want := range []int64{4000, 8000, 16000, 32000, 60000} {
		host.advance(a.quest.giverBackoffMS)
		_, ok = a.quest.nextGiverHub(moveCtx(e, a, sc.self))
		require.False(t, ok)
		assert.Equal(t, want, a.quest.giverBackoffMS)
	}
}

func TestNextGiverHubFindsNearestCluster(t *testing.T) {
	host := newFakeHost()
	host.quests[questWolves] = killQuest(questWolves, 100, 5)
	host.givers = []hostbridge.QuestGiver{
		{Entry: 4001, Pos: pos(500, 0), Faction: 1, Quests: []uint32{questWolves}},
		{Entry: 4002, Pos: pos(520, 0), Faction: 1, Quests: []uint32{questWolves}},
		{Entry: 4003, Pos: pos(5000, 5000), Faction: 1, Quests: []uint32{questWolves}},
	}
	cfg := DefaultConfig()
	cfg.Workers = 1
	e, err := New(cfg, host, testCatalogs())
	require.NoError(t, err)
	require.Equal(t, 1, e.Hubs().HubCount(), "the isolated giver is noise, not a hub")

	acfg := warriorConfig(1)
	acfg.FactionMask = 1
	a := addAgent(t, e, acfg)
	sc := moveCtx(e, a, player(1, pos(0, 0)))
	a.quest.giverBackoffMS = 8000

	sg, ok := a.quest.nextGiverHub(sc)
	require.True(t, ok)
	assert.Equal(t, orders.SubGoalFindGiver, sg.Kind)
	assert.Equal(t, float32(510), sg.Dest.X)
	assert.Equal(t, float32(10), sg.Radius)
	assert.Zero(t, a.quest.giverBackoffMS)

	// An active quest log suspends hub seeking entirely.
	a.quest.setLog([]uint32{questWolves})
	_, ok = a.quest.nextGiverHub(sc)
	assert.False(t, ok)
}

func TestHasWorkIgnoresUnknownQuests(t *testing.T) {
	e, host := newTestEngine(t)
	a, sc := questAgent(t, e, host, 31337)
	assert.False(t, a.quest.hasWork(sc), "quests the host cannot describe carry no objectives")
}
