package sim

import (
	"testing"

	"deepspire/server/internal/dungeon"
)

func bossEngine(bossDef string, health, maxHealth float64) (*Engine, *dungeon.Enemy) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	room := e.state.Dungeon.Room(2)
	room.Type = dungeon.RoomBoss
	boss := &dungeon.Enemy{
		ID:        "boss-1",
		DefID:     bossDef,
		Boss:      true,
		Alive:     true,
		Health:    health,
		MaxHealth: maxHealth,
		TargetID:  "p1",
		RoomID:    2,
	}
	room.Enemies = []*dungeon.Enemy{boss}
	return e, boss
}

func TestThresholdPhaseFiresOnce(t *testing.T) {
	e, boss := bossEngine("gravelord", 630, 900) // 70%: below the 75% summon threshold

	events := e.tickBossPhases()
	if len(events) != 1 || events[0].Type != EventBossPhase {
		t.Fatalf("expected one boss_phase, got %+v", events)
	}
	room := e.state.Dungeon.Room(2)
	if got := len(room.Enemies); got != 4 {
		t.Fatalf("enemies after summon = %d, want 4", got)
	}
	if !e.state.Tracking.BossPhases[PhaseKey(boss.ID, "summon-thralls")] {
		t.Fatal("phase not recorded")
	}

	if events := e.tickBossPhases(); len(events) != 0 {
		t.Fatalf("threshold phase fired twice: %+v", events)
	}

	// Dropping past the next threshold fires exactly that phase.
	boss.Health = 400 // 44%
	events = e.tickBossPhases()
	if len(events) != 1 {
		t.Fatalf("expected bone-storm only, got %+v", events)
	}
	if len(e.state.GroundEffects) != 1 {
		t.Fatalf("ground effects = %d, want 1", len(e.state.GroundEffects))
	}
}

func TestEnragePhaseRaisesFlag(t *testing.T) {
	e, boss := bossEngine("gravelord", 100, 900)

	e.tickBossPhases()
	if !boss.Enraged {
		t.Fatal("enrage phase did not raise the flag")
	}
	// The flag is continuous, not a repeating event.
	if events := e.tickBossPhases(); len(events) != 0 {
		t.Fatalf("enrage re-fired: %+v", events)
	}
}

func TestIntervalPhaseReschedules(t *testing.T) {
	e, boss := bossEngine("pyre-queen", 1200, 1200)
	key := PhaseKey(boss.ID, "cinder-wave")

	// First evaluation schedules without firing.
	if events := e.tickBossPhases(); len(events) != 0 {
		t.Fatalf("interval phase fired immediately: %+v", events)
	}
	next, ok := e.state.Tracking.BossPhaseTimers[key]
	if !ok {
		t.Fatal("interval phase not scheduled")
	}

	e.tick = next
	events := e.tickBossPhases()
	if len(events) != 1 {
		t.Fatalf("expected cinder-wave, got %+v", events)
	}
	if rescheduled := e.state.Tracking.BossPhaseTimers[key]; rescheduled != next+120 {
		t.Fatalf("rescheduled at %d, want %d", rescheduled, next+120)
	}
}

func TestBossIdleWithoutTarget(t *testing.T) {
	e, boss := bossEngine("gravelord", 100, 900)
	boss.TargetID = ""

	if events := e.tickBossPhases(); len(events) != 0 {
		t.Fatalf("phases fired without a target: %+v", events)
	}
}

func TestGroundEffectDamagesAndExpires(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	e.state.GroundEffects = []*GroundEffect{{
		ID:         "ground-1",
		Kind:       "bone_storm",
		X:          p.X,
		Y:          p.Y,
		Radius:     90,
		DurationMS: 200,
		DamagePerS: 20,
		RoomID:     1,
	}}

	dt := float64(TickMS) / 1000.0
	e.tickGroundEffects(dt)
	if p.Health >= p.MaxHealth {
		t.Fatal("standing in the effect dealt no damage")
	}
	if len(e.state.GroundEffects) != 1 {
		t.Fatal("effect expired early")
	}

	e.tickGroundEffects(dt)
	if len(e.state.GroundEffects) != 0 {
		t.Fatal("effect outlived its duration")
	}
}
