package sim

import (
	"testing"

	"deepspire/server/internal/dungeon"
)

func castCmd(playerID, abilityID, targetID string) Command {
	return Command{
		Type:     CommandCast,
		PlayerID: playerID,
		Cast:     &CastCommand{AbilityID: abilityID, TargetID: targetID},
	}
}

func TestCastDamageAbility(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "mage"))
	p := e.state.Players[0]
	p.BaseCrit = 0
	room := e.state.Dungeon.Room(1)
	enemy := &dungeon.Enemy{ID: "e1", Alive: true, Health: 100, MaxHealth: 100, X: p.X + 50, Y: p.Y, RoomID: 1}
	room.Enemies = []*dungeon.Enemy{enemy}

	events := e.applyCommand(castCmd("p1", "firebolt", "e1"))
	if len(events) != 1 || events[0].Type != EventAbilityCast {
		t.Fatalf("expected ability_cast, got %+v", events)
	}
	if enemy.Health != 58 {
		t.Fatalf("enemy health = %.1f, want 58", enemy.Health)
	}
	if p.Mana != p.MaxMana-18 {
		t.Fatalf("mana = %.1f, want %.1f", p.Mana, p.MaxMana-18)
	}
	key := CooldownKey("p1", "firebolt")
	if readyAt := e.state.Tracking.Cooldowns[key]; readyAt != 25 {
		t.Fatalf("cooldown readyAt = %d, want 25", readyAt)
	}
}

func TestCastRejections(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "mage"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	enemy := &dungeon.Enemy{ID: "e1", Alive: true, Health: 100, MaxHealth: 100, X: p.X + 50, Y: p.Y, RoomID: 1}
	room.Enemies = []*dungeon.Enemy{enemy}

	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "meteor", "e1"))); got != ReasonUnknownAbility {
		t.Fatalf("reason = %q, want %q", got, ReasonUnknownAbility)
	}

	e.applyCommand(castCmd("p1", "firebolt", "e1"))
	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "e1"))); got != ReasonCooldownActive {
		t.Fatalf("reason = %q, want %q", got, ReasonCooldownActive)
	}
	delete(e.state.Tracking.Cooldowns, CooldownKey("p1", "firebolt"))

	p.Mana = 5
	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "e1"))); got != ReasonNotEnoughMana {
		t.Fatalf("reason = %q, want %q", got, ReasonNotEnoughMana)
	}
	p.Mana = p.MaxMana

	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "nobody"))); got != ReasonInvalidTarget {
		t.Fatalf("reason = %q, want %q", got, ReasonInvalidTarget)
	}

	enemy.Hidden = true
	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "e1"))); got != ReasonInvalidTarget {
		t.Fatalf("hidden target reason = %q, want %q", got, ReasonInvalidTarget)
	}
	enemy.Hidden = false

	enemy.X = p.X + 1000
	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "e1"))); got != ReasonOutOfRange {
		t.Fatalf("reason = %q, want %q", got, ReasonOutOfRange)
	}
	enemy.X = p.X + 50

	p.Alive = false
	if got := rejectionReason(t, e.applyCommand(castCmd("p1", "firebolt", "e1"))); got != ReasonPlayerDead {
		t.Fatalf("reason = %q, want %q", got, ReasonPlayerDead)
	}

	if got := rejectionReason(t, e.applyCommand(Command{Type: CommandCast, PlayerID: "ghost"})); got != ReasonUnknownPlayer {
		t.Fatalf("reason = %q, want %q", got, ReasonUnknownPlayer)
	}
}

func TestCastHealingClampsAtMax(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "cleric"))
	p := e.state.Players[0]
	p.Health = p.MaxHealth - 10

	e.applyCommand(castCmd("p1", "mend", ""))
	if p.Health != p.MaxHealth {
		t.Fatalf("health = %.1f, want %.1f", p.Health, p.MaxHealth)
	}
}

func TestVanishGrantsAndExpiresStealth(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "rogue"))
	p := e.state.Players[0]

	e.applyCommand(castCmd("p1", "vanish", ""))
	if !p.Stealthed() {
		t.Fatal("vanish did not grant stealth")
	}
	if targets := e.eligibleTargets(e.state.Dungeon.Room(1)); len(targets) != 0 {
		t.Fatalf("stealthed player still targetable: %d targets", len(targets))
	}

	// Recasting while the buff holds never stacks a second entry.
	delete(e.state.Tracking.Cooldowns, CooldownKey("p1", "vanish"))
	e.applyCommand(castCmd("p1", "vanish", ""))
	if len(p.Buffs) != 1 {
		t.Fatalf("buff count = %d, want 1", len(p.Buffs))
	}

	// 4000ms duration, 100ms ticks.
	for i := 0; i < 40; i++ {
		e.advanceBuffs()
	}
	if p.Stealthed() {
		t.Fatal("stealth outlived its duration")
	}
}

func TestSelectTarget(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	room.Enemies = []*dungeon.Enemy{{ID: "e1", Alive: true, RoomID: 1}}

	e.applyCommand(Command{Type: CommandSelectTarget, PlayerID: "p1", Target: &TargetCommand{TargetID: "e1"}})
	if p.TargetID != "e1" {
		t.Fatalf("target = %q, want e1", p.TargetID)
	}

	e.applyCommand(Command{Type: CommandSelectTarget, PlayerID: "p1", Target: &TargetCommand{}})
	if p.TargetID != "" {
		t.Fatal("empty selection did not clear target")
	}

	got := rejectionReason(t, e.applyCommand(Command{Type: CommandSelectTarget, PlayerID: "p1", Target: &TargetCommand{TargetID: "nobody"}}))
	if got != ReasonInvalidTarget {
		t.Fatalf("reason = %q, want %q", got, ReasonInvalidTarget)
	}
}

func TestCollectLoot(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	e.state.PendingLoot = []*LootDrop{
		{ID: "loot-1", Gold: 30, Item: Item{ID: "item-1", Name: "Relic", Slot: "trinket", Power: 9}, X: p.X, Y: p.Y, RoomID: 1},
		{ID: "loot-2", Gold: 5, X: p.X + 500, Y: p.Y, RoomID: 1},
	}

	events := e.applyCommand(Command{Type: CommandCollectLoot, PlayerID: "p1", Loot: &LootCommand{LootID: "loot-1"}})
	if len(events) != 1 || events[0].Type != EventLootCollected {
		t.Fatalf("expected loot_collected, got %+v", events)
	}
	if p.Gold != 30 {
		t.Fatalf("gold = %d, want 30", p.Gold)
	}
	if len(p.Backpack) != 1 || p.Backpack[0].ID != "item-1" {
		t.Fatalf("backpack = %+v", p.Backpack)
	}
	if len(e.state.PendingLoot) != 1 {
		t.Fatal("collected drop not removed")
	}

	got := rejectionReason(t, e.applyCommand(Command{Type: CommandCollectLoot, PlayerID: "p1", Loot: &LootCommand{LootID: "loot-2"}}))
	if got != ReasonOutOfRange {
		t.Fatalf("reason = %q, want %q", got, ReasonOutOfRange)
	}

	got = rejectionReason(t, e.applyCommand(Command{Type: CommandCollectLoot, PlayerID: "p1", Loot: &LootCommand{LootID: "loot-9"}}))
	if got != ReasonLootNotFound {
		t.Fatalf("reason = %q, want %q", got, ReasonLootNotFound)
	}
}

func TestEquipSwapAndUnequip(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	p.Backpack = []Item{{ID: "it1", Name: "Old Blade", Slot: "weapon", Power: 5}}

	e.applyCommand(Command{Type: CommandEquip, PlayerID: "p1", Equip: &EquipCommand{ItemID: "it1"}})
	if p.Equipment["weapon"].ID != "it1" || len(p.Backpack) != 0 {
		t.Fatalf("equip failed: equipment=%+v backpack=%+v", p.Equipment, p.Backpack)
	}

	p.Backpack = append(p.Backpack, Item{ID: "it2", Name: "New Blade", Slot: "weapon", Power: 9})
	e.applyCommand(Command{Type: CommandEquip, PlayerID: "p1", Equip: &EquipCommand{ItemID: "it2"}})
	if p.Equipment["weapon"].ID != "it2" {
		t.Fatalf("swap kept %q equipped", p.Equipment["weapon"].ID)
	}
	if len(p.Backpack) != 1 || p.Backpack[0].ID != "it1" {
		t.Fatalf("swapped item not returned: %+v", p.Backpack)
	}

	e.applyCommand(Command{Type: CommandUnequip, PlayerID: "p1", Equip: &EquipCommand{Slot: "weapon"}})
	if _, ok := p.Equipment["weapon"]; ok {
		t.Fatal("unequip left slot occupied")
	}
	if len(p.Backpack) != 2 {
		t.Fatalf("backpack = %+v", p.Backpack)
	}

	got := rejectionReason(t, e.applyCommand(Command{Type: CommandEquip, PlayerID: "p1", Equip: &EquipCommand{ItemID: "it9"}}))
	if got != ReasonItemNotFound {
		t.Fatalf("reason = %q, want %q", got, ReasonItemNotFound)
	}
}

func TestOpenChestReasons(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	chest := &dungeon.Chest{ID: "chest-1", X: p.X + 20, Y: p.Y, Tier: 1}
	room.Chests = []*dungeon.Chest{chest}

	open := func(id string) []Event {
		return e.applyCommand(Command{Type: CommandOpenChest, PlayerID: "p1", Chest: &ChestCommand{ChestID: id}})
	}

	if got := rejectionReason(t, open("chest-9")); got != ReasonChestNotFound {
		t.Fatalf("reason = %q, want %q", got, ReasonChestNotFound)
	}

	p.Alive = false
	if got := rejectionReason(t, open("chest-1")); got != ReasonPlayerDead {
		t.Fatalf("reason = %q, want %q", got, ReasonPlayerDead)
	}
	p.Alive = true

	oldX := p.X
	p.X = chest.X + ChestOpenRange + 1
	if got := rejectionReason(t, open("chest-1")); got != ReasonOutOfRange {
		t.Fatalf("reason = %q, want %q", got, ReasonOutOfRange)
	}
	p.X = oldX

	chest.Locked = true
	if got := rejectionReason(t, open("chest-1")); got != ReasonChestLocked {
		t.Fatalf("reason = %q, want %q", got, ReasonChestLocked)
	}
	chest.Locked = false

	events := open("chest-1")
	if len(events) != 1 || events[0].Type != EventChestOpened {
		t.Fatalf("expected chest_opened, got %+v", events)
	}
	if p.Gold == 0 {
		t.Fatal("chest yielded no gold")
	}

	if got := rejectionReason(t, open("chest-1")); got != ReasonChestAlreadyOpen {
		t.Fatalf("reason = %q, want %q", got, ReasonChestAlreadyOpen)
	}
}

func TestMimicChestSpawnsEnemy(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	room.Cleared = true
	chest := &dungeon.Chest{ID: "chest-m", X: p.X + 20, Y: p.Y, Tier: 1, Mimic: true}
	room.Chests = []*dungeon.Chest{chest}

	events := e.applyCommand(Command{Type: CommandOpenChest, PlayerID: "p1", Chest: &ChestCommand{ChestID: "chest-m"}})
	if len(events) != 1 || events[0].Type != EventMimicRevealed {
		t.Fatalf("expected mimic_revealed, got %+v", events)
	}
	mimic := e.state.EnemyByID("mimic-chest-m")
	if mimic == nil || !mimic.Alive {
		t.Fatal("mimic not spawned")
	}
	if mimic.TargetID != "p1" {
		t.Fatalf("mimic target = %q, want p1", mimic.TargetID)
	}
	if room.Cleared {
		t.Fatal("room stayed cleared with a live mimic")
	}
}

func TestVendorPurchase(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	room.Vendors = []dungeon.Vendor{{ID: "vendor-1", Kind: "alchemist", X: p.X, Y: p.Y}}
	p.Gold = 100
	p.Health = 50

	buy := func(vendorID, offerID string) []Event {
		return e.applyCommand(Command{Type: CommandBuyVendor, PlayerID: "p1", Vendor: &VendorCommand{VendorID: vendorID, OfferID: offerID}})
	}

	events := buy("vendor-1", "offer-health-draught")
	if len(events) != 1 || events[0].Type != EventVendorPurchase {
		t.Fatalf("expected vendor_purchase, got %+v", events)
	}
	if p.Gold != 75 {
		t.Fatalf("gold = %d, want 75", p.Gold)
	}
	if p.Health != 130 {
		t.Fatalf("health = %.1f, want 130", p.Health)
	}
	if len(p.Backpack) != 0 {
		t.Fatal("consumed draught occupies a slot")
	}

	p.Gold = 10
	if got := rejectionReason(t, buy("vendor-1", "offer-health-draught")); got != ReasonNotEnoughGold {
		t.Fatalf("reason = %q, want %q", got, ReasonNotEnoughGold)
	}

	if got := rejectionReason(t, buy("vendor-9", "offer-health-draught")); got != ReasonVendorNotFound {
		t.Fatalf("reason = %q, want %q", got, ReasonVendorNotFound)
	}

	p.X += VendorRange + 1
	if got := rejectionReason(t, buy("vendor-1", "offer-health-draught")); got != ReasonOutOfRange {
		t.Fatalf("reason = %q, want %q", got, ReasonOutOfRange)
	}
}

func TestPetPurchaseFromCurio(t *testing.T) {
	e := syntheticEngine(testPlayer("p1", "warrior"))
	p := e.state.Players[0]
	room := e.state.Dungeon.Room(1)
	room.Vendors = []dungeon.Vendor{{ID: "vendor-1", Kind: "curio", X: p.X, Y: p.Y}}
	p.Gold = 300

	buy := func() []Event {
		return e.applyCommand(Command{Type: CommandBuyVendor, PlayerID: "p1", Vendor: &VendorCommand{VendorID: "vendor-1", OfferID: "offer-wolf-pup"}})
	}

	events := buy()
	if len(events) != 1 || events[0].Type != EventPetSummoned {
		t.Fatalf("expected pet_summoned, got %+v", events)
	}
	if p.Gold != 180 {
		t.Fatalf("gold = %d, want 180", p.Gold)
	}
	pet := e.playerPet("p1")
	if pet == nil || pet.OwnerID != "p1" || !pet.Alive {
		t.Fatalf("pet = %+v", pet)
	}
	if len(p.Backpack) != 0 {
		t.Fatal("pet occupies a backpack slot")
	}

	// One pet per player.
	if got := rejectionReason(t, buy()); got != ReasonPetAlreadyOwned {
		t.Fatalf("reason = %q, want %q", got, ReasonPetAlreadyOwned)
	}
	if p.Gold != 180 {
		t.Fatalf("rejected purchase charged gold: %d", p.Gold)
	}
}
