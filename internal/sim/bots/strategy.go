package bots

// Strategy is one decision module in an agent's pipeline. Every step the
// scheduler asks each strategy whether it applies, ranks the active ones by
// relevance, and runs them highest first. A strategy that emits at emergency
// priority ends the pipeline for the tick.
type Strategy interface {
	Name() string
	Active(sc *stepCtx) bool
	Relevance(sc *stepCtx) int
	Update(sc *stepCtx)
}

// Relevance tiers. Emergency strategies outrank everything; content work
// only runs when combat leaves room for it.
const (
	RelevanceEmergencyFloor = 150
	RelevanceCombatCeil     = 120
	RelevanceCombatFloor    = 60
	RelevanceContentCeil    = 70
	RelevanceContentFloor   = 30
	RelevanceIdleCeil       = 30
)

// Intent priorities. The queue maps these to bands: >=100 emergency,
// >=60 combat, >=30 normal, below that low.
const (
	PriorityEmergencyFloor = 100

	PriorityDefensiveCritical = 150
	PriorityCCBreak           = 145
	PriorityDefensiveMajor    = 130
	PriorityInterruptBase     = 110
	PriorityDefensiveModerate = 110
	PriorityExternal          = 105
	PriorityHealCritical      = 120
	PriorityDefensiveMinor    = 90
	PriorityDispel            = 85
	PriorityHealNormal        = 75
	PriorityRotation          = 60
	PriorityQuestInteract     = 35
	PriorityLoot              = 32
	PriorityUseQuestItem      = 34
	PriorityIdle              = 10
)

// Movement priorities, arbitrated separately from the queue bands.
const (
	MoveEvade  = 100
	MoveCombat = 80
	MoveFollow = 60
	MoveQuest  = 50
	MoveLoot   = 40
	MoveIdle   = 10
)

// byRelevance orders strategies for one step: higher relevance first, name
// as the deterministic tie-break.
type scoredStrategy struct {
	s         Strategy
	relevance int
}

func sortScored(list []scoredStrategy) {
	// Insertion sort; the list is tiny and mostly ordered between ticks.
	for i := 1; i < len(list); i++ {
		cur := list[i]
		j := i - 1
		for j >= 0 && less(cur, list[j]) {
			list[j+1] = list[j]
			j--
		}
		list[j+1] = cur
	}
}

func less(a, b scoredStrategy) bool {
	if a.relevance != b.relevance {
		return a.relevance > b.relevance
	}
	return a.s.Name() < b.s.Name()
}
