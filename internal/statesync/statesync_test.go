package statesync

import (
	"testing"

	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/sim"
)

func testState() *sim.RunState {
	room := &dungeon.Room{
		ID: 1, X: 0, Y: 0, Width: 300, Height: 300,
		Type: dungeon.RoomStart, Connections: []int{2},
		Enemies: []*dungeon.Enemy{
			{ID: "e1", DefID: "skeleton", Name: "Skeleton", X: 200, Y: 200, Health: 60, MaxHealth: 60, Alive: true, RoomID: 1},
		},
		Chests: []*dungeon.Chest{{ID: "chest-1", X: 40, Y: 40, Tier: 1}},
	}
	boss := &dungeon.Room{ID: 2, X: 600, Y: 0, Width: 400, Height: 400, Type: dungeon.RoomBoss, Connections: []int{1}}
	return &sim.RunState{
		RunID: "run-1",
		Seed:  "run-1",
		Floor: 1,
		Players: []*sim.Player{{
			ID: "p1", Name: "Hero", ClassID: "warrior",
			X: 150, Y: 150, RoomID: 1,
			Health: 220, MaxHealth: 220, Mana: 60, MaxMana: 60,
			Alive: true, Level: 1,
		}},
		Dungeon: &dungeon.Dungeon{
			Floor: 1, Seed: "run-1",
			Rooms:         []*dungeon.Room{room, boss},
			CurrentRoomID: 1,
			Theme:         dungeon.ThemeCrypt,
			ThemeMods:     dungeon.ModifiersForTheme(dungeon.ThemeCrypt, 1),
		},
		Tracking: sim.NewTracking(),
	}
}

func TestFirstPrepareIsFullSnapshot(t *testing.T) {
	s := New()
	state := testState()

	payload := s.Prepare("c1", state, 0, false)
	if payload == nil || payload.Kind != KindFull {
		t.Fatalf("expected full snapshot, got %+v", payload)
	}
	if len(payload.Rooms) != len(state.Dungeon.Rooms) {
		t.Fatalf("full snapshot carries %d rooms, want %d", len(payload.Rooms), len(state.Dungeon.Rooms))
	}
	if len(payload.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(payload.Players))
	}
}

func TestUnchangedStateReturnsNil(t *testing.T) {
	s := New()
	state := testState()

	s.Prepare("c1", state, 0, false)
	if payload := s.Prepare("c1", state, 0, false); payload != nil {
		t.Fatalf("identical state produced a payload: %+v", payload)
	}
}

func TestSubUnitMovementDoesNotChangeHash(t *testing.T) {
	state := testState()
	before := Hash(state, 0)

	state.Players[0].X += 0.4
	if Hash(state, 0) != before {
		t.Fatal("hash changed for sub-unit movement")
	}

	state.Players[0].X += 2
	if Hash(state, 0) == before {
		t.Fatal("hash unchanged for 2-unit movement")
	}
}

func TestChangedStateYieldsDelta(t *testing.T) {
	s := New()
	state := testState()

	s.Prepare("c1", state, 0, false)
	state.Players[0].X += 50
	payload := s.Prepare("c1", state, 0, false)
	if payload == nil || payload.Kind != KindDelta {
		t.Fatalf("expected delta, got %+v", payload)
	}
	if len(payload.Rooms) != 0 {
		t.Fatal("delta carried full room records")
	}
	if len(payload.Enemies) != 1 || payload.Enemies[0].ID != "e1" {
		t.Fatalf("enemy deltas = %+v", payload.Enemies)
	}
	if len(payload.NewEnemies) != 0 {
		t.Fatalf("known enemy resent as new: %+v", payload.NewEnemies)
	}
}

func TestNewEnemySentAsFullRecordOnce(t *testing.T) {
	s := New()
	state := testState()
	s.Prepare("c1", state, 0, false)

	room := state.Dungeon.Rooms[0]
	room.Enemies = append(room.Enemies, &dungeon.Enemy{
		ID: "summon-1", DefID: "skeleton", Name: "Skeleton",
		X: 100, Y: 100, Health: 60, MaxHealth: 60, Alive: true, RoomID: 1,
	})

	payload := s.Prepare("c1", state, 0, false)
	if payload == nil || payload.Kind != KindDelta {
		t.Fatalf("expected delta, got %+v", payload)
	}
	if len(payload.NewEnemies) != 1 || payload.NewEnemies[0].ID != "summon-1" {
		t.Fatalf("new enemies = %+v", payload.NewEnemies)
	}

	state.Players[0].Y += 10
	payload = s.Prepare("c1", state, 0, false)
	if len(payload.NewEnemies) != 0 {
		t.Fatalf("summon resent as new: %+v", payload.NewEnemies)
	}
	if len(payload.Enemies) != 2 {
		t.Fatalf("enemy deltas = %d, want 2", len(payload.Enemies))
	}
}

func TestInvalidateForcesFullSnapshot(t *testing.T) {
	s := New()
	state := testState()
	s.Prepare("c1", state, 0, false)

	s.InvalidateClient("c1")
	payload := s.Prepare("c1", state, 0, false)
	if payload == nil || payload.Kind != KindFull {
		t.Fatalf("expected full after invalidation, got %+v", payload)
	}

	// The known-enemy baseline was rebuilt by the full snapshot.
	state.Players[0].X += 5
	payload = s.Prepare("c1", state, 0, false)
	if payload == nil || len(payload.NewEnemies) != 0 {
		t.Fatalf("baseline lost after invalidation: %+v", payload)
	}
}

func TestForceFullArgument(t *testing.T) {
	s := New()
	state := testState()
	s.Prepare("c1", state, 0, false)

	payload := s.Prepare("c1", state, 0, true)
	if payload == nil || payload.Kind != KindFull {
		t.Fatalf("expected forced full, got %+v", payload)
	}
}

func TestClientsTrackIndependently(t *testing.T) {
	s := New()
	state := testState()

	s.Prepare("c1", state, 0, false)
	payload := s.Prepare("c2", state, 0, false)
	if payload == nil || payload.Kind != KindFull {
		t.Fatal("second client denied its full snapshot")
	}

	s.RemoveClient("c1")
	payload = s.Prepare("c1", state, 0, false)
	if payload == nil || payload.Kind != KindFull {
		t.Fatal("removed client not reset to full")
	}
}

func TestFractionalHealthChangesHash(t *testing.T) {
	state := testState()
	before := Hash(state, 0)

	state.Players[0].Health -= 0.5
	if Hash(state, 0) == before {
		t.Fatal("hash unchanged for fractional health loss")
	}
}

func TestGroundEffectDurationChangesHash(t *testing.T) {
	state := testState()
	state.GroundEffects = []*sim.GroundEffect{{
		ID: "ge-1", Kind: "poison_pool", X: 100, Y: 100,
		Radius: 50, DurationMS: 3000, RoomID: 1,
	}}
	before := Hash(state, 0)

	state.GroundEffects[0].DurationMS -= sim.TickMS
	if Hash(state, 0) == before {
		t.Fatal("hash unchanged as ground effect burned down")
	}
}

func TestCooldownsInPayloadAndHash(t *testing.T) {
	s := New()
	state := testState()
	s.Prepare("c1", state, 10, false)

	// Starting a cooldown is a change; the payload carries it with the
	// remaining time in milliseconds.
	state.Tracking.Cooldowns[sim.CooldownKey("p1", "cleave")] = 30
	payload := s.Prepare("c1", state, 10, false)
	if payload == nil {
		t.Fatal("cooldown start produced no payload")
	}
	if len(payload.Cooldowns) != 1 || payload.Cooldowns[0].PlayerID != "p1" {
		t.Fatalf("cooldowns = %+v", payload.Cooldowns)
	}
	entry := payload.Cooldowns[0].Abilities[0]
	if entry.AbilityID != "cleave" || entry.RemainingMS != 20*sim.TickMS {
		t.Fatalf("cooldown entry = %+v", entry)
	}

	// Ticking down is not a change; the ready-at tick is stable.
	if payload := s.Prepare("c1", state, 11, false); payload != nil {
		t.Fatalf("mid-countdown tick produced a payload: %+v", payload)
	}

	// Expiry is a change again.
	payload = s.Prepare("c1", state, 30, false)
	if payload == nil {
		t.Fatal("cooldown expiry produced no payload")
	}
	if len(payload.Cooldowns) != 0 {
		t.Fatalf("expired cooldown still on the wire: %+v", payload.Cooldowns)
	}
}

func TestEnemyCooldownsNeverReachClients(t *testing.T) {
	state := testState()
	before := Hash(state, 0)

	state.Tracking.Cooldowns["e1_attack"] = 100
	if Hash(state, 0) != before {
		t.Fatal("enemy attack cooldown leaked into the hash")
	}

	s := New()
	payload := s.Prepare("c1", state, 0, false)
	if len(payload.Cooldowns) != 0 {
		t.Fatalf("enemy cooldown on the wire: %+v", payload.Cooldowns)
	}
}

func TestChestOpenFlagFlowsThroughDelta(t *testing.T) {
	s := New()
	state := testState()
	s.Prepare("c1", state, 0, false)

	state.Dungeon.Rooms[0].Chests[0].Open = true
	payload := s.Prepare("c1", state, 0, false)
	if payload == nil {
		t.Fatal("chest open produced no payload")
	}
	if len(payload.Chests) != 1 || !payload.Chests[0].Open {
		t.Fatalf("chest deltas = %+v", payload.Chests)
	}
}
