package sim

import "deepspire/server/internal/dungeon"

// ChargeState is an elite's wound-up dash toward a fixed point.
type ChargeState struct {
	TargetX     float64
	TargetY     float64
	ReleaseTick uint64
}

// Tracking holds every timer and one-shot flag the simulation keys by
// entity id. It lives outside the snapshotted state so clients never
// see it, and it is reset wholesale on floor advance except for the
// two maps that outlive floors: movement intent and death timestamps.
type Tracking struct {
	// Cooldowns maps "playerId_abilityId" (and "enemyId_attack") to
	// the tick the action is next usable.
	Cooldowns map[string]uint64

	// AggroTimers maps enemy id to the tick its first attack lands
	// after acquiring a target.
	AggroTimers map[string]uint64

	// LeashTimers counts consecutive targetless ticks per enemy.
	LeashTimers map[string]int

	// ChargeStates holds in-flight elite charges.
	ChargeStates map[string]*ChargeState

	// AmbushTriggered marks rooms whose ambush already fired. Never
	// cleared mid-floor, so an ambush fires at most once per room.
	AmbushTriggered map[int]bool

	// ModifierTicks maps room id to the tick its environmental damage
	// next applies.
	ModifierTicks map[int]uint64

	// BossPhases marks "bossId_phaseId" threshold phases that fired.
	BossPhases map[string]bool

	// BossPhaseTimers maps "bossId_phaseId" to the next interval fire.
	BossPhaseTimers map[string]uint64

	// RespawnTicks maps a dead player with a life remaining to the tick
	// they come back at the start room.
	RespawnTicks map[string]uint64

	// PlayerMovement is each player's latest movement intent. Survives
	// floor advances so held input carries into the new floor.
	PlayerMovement map[string]dungeon.Vec2

	// PlayerDeathTimes records when each player last died, unix
	// milliseconds. Survives floor advances for run statistics.
	PlayerDeathTimes map[string]int64
}

// NewTracking returns an empty tracking set.
func NewTracking() *Tracking {
	return &Tracking{
		Cooldowns:        make(map[string]uint64),
		AggroTimers:      make(map[string]uint64),
		LeashTimers:      make(map[string]int),
		ChargeStates:     make(map[string]*ChargeState),
		AmbushTriggered:  make(map[int]bool),
		ModifierTicks:    make(map[int]uint64),
		BossPhases:       make(map[string]bool),
		BossPhaseTimers:  make(map[string]uint64),
		RespawnTicks:     make(map[string]uint64),
		PlayerMovement:   make(map[string]dungeon.Vec2),
		PlayerDeathTimes: make(map[string]int64),
	}
}

// ResetForFloor clears all per-floor state in one step. PlayerMovement
// and PlayerDeathTimes are deliberately kept.
func (t *Tracking) ResetForFloor() {
	t.Cooldowns = make(map[string]uint64)
	t.AggroTimers = make(map[string]uint64)
	t.LeashTimers = make(map[string]int)
	t.ChargeStates = make(map[string]*ChargeState)
	t.AmbushTriggered = make(map[int]bool)
	t.ModifierTicks = make(map[int]uint64)
	t.BossPhases = make(map[string]bool)
	t.BossPhaseTimers = make(map[string]uint64)
	t.RespawnTicks = make(map[string]uint64)
}

// CooldownKey builds the composite cooldown map key.
func CooldownKey(playerID, abilityID string) string {
	return playerID + "_" + abilityID
}

// PhaseKey builds the composite boss phase map key.
func PhaseKey(bossID, phaseID string) string {
	return bossID + "_" + phaseID
}
