package sim

// CommandType tags queued player input.
type CommandType string

const (
	CommandMove         CommandType = "move"
	CommandCast         CommandType = "cast"
	CommandSelectTarget CommandType = "select_target"
	CommandCollectLoot  CommandType = "collect_loot"
	CommandEquip        CommandType = "equip"
	CommandUnequip      CommandType = "unequip"
	CommandOpenChest    CommandType = "open_chest"
	CommandBuyVendor    CommandType = "buy_vendor"
	CommandAdvanceFloor CommandType = "advance_floor"
)

// Rejection reasons surfaced to clients. Each failing precondition has
// a distinguishable reason; nothing here ever crashes the run.
const (
	ReasonCooldownActive   = "cooldown_active"
	ReasonNotEnoughMana    = "not_enough_mana"
	ReasonUnknownAbility   = "unknown_ability"
	ReasonPlayerDead       = "player_dead"
	ReasonInvalidTarget    = "invalid_target"
	ReasonOutOfRange       = "out_of_range"
	ReasonBossNotDefeated  = "boss_not_defeated"
	ReasonChestLocked      = "chest_locked"
	ReasonChestAlreadyOpen = "chest_already_open"
	ReasonChestNotFound    = "chest_not_found"
	ReasonLootNotFound     = "loot_not_found"
	ReasonItemNotFound     = "item_not_found"
	ReasonVendorNotFound   = "vendor_not_found"
	ReasonNotEnoughGold    = "not_enough_gold"
	ReasonUnknownPlayer    = "unknown_player"
	ReasonUnknownCommand   = "unknown_command"
	ReasonPetAlreadyOwned  = "pet_already_owned"
)

// MoveCommand sets the player's movement intent vector.
type MoveCommand struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// CastCommand fires an ability, optionally at an explicit target.
type CastCommand struct {
	AbilityID string `json:"abilityId"`
	TargetID  string `json:"targetId,omitempty"`
}

// TargetCommand selects the player's current target.
type TargetCommand struct {
	TargetID string `json:"targetId"`
}

// LootCommand collects one pending drop.
type LootCommand struct {
	LootID string `json:"lootId"`
}

// EquipCommand equips a backpack item into a slot, or clears the slot
// when ItemID is empty.
type EquipCommand struct {
	ItemID string `json:"itemId"`
	Slot   string `json:"slot"`
}

// ChestCommand opens a chest.
type ChestCommand struct {
	ChestID string `json:"chestId"`
}

// VendorCommand purchases an offer from a vendor.
type VendorCommand struct {
	VendorID string `json:"vendorId"`
	OfferID  string `json:"offerId"`
}

// Command is one buffered player action, applied at the start of the
// next tick.
type Command struct {
	Type     CommandType
	PlayerID string

	Move   *MoveCommand
	Cast   *CastCommand
	Target *TargetCommand
	Loot   *LootCommand
	Equip  *EquipCommand
	Chest  *ChestCommand
	Vendor *VendorCommand
}

// EventType tags a simulation output event.
type EventType string

const (
	EventActionRejected EventType = "action_rejected"
	EventAbilityCast    EventType = "ability_cast"
	EventEnemyKilled    EventType = "enemy_killed"
	EventPlayerDied     EventType = "player_died"
	EventLootDropped    EventType = "loot_dropped"
	EventLootCollected  EventType = "loot_collected"
	EventChestOpened    EventType = "chest_opened"
	EventMimicRevealed  EventType = "mimic_revealed"
	EventAmbushRevealed EventType = "ambush_revealed"
	EventBossPhase      EventType = "boss_phase"
	EventBossDefeated   EventType = "boss_defeated"
	EventFloorAdvanced  EventType = "floor_advanced"
	EventVendorPurchase EventType = "vendor_purchase"
	EventRoomCleared    EventType = "room_cleared"
	EventPetSummoned    EventType = "pet_summoned"
	EventPlayerRespawn  EventType = "player_respawn"
	EventRunEnded       EventType = "run_ended"
)

// Event is one gameplay occurrence emitted by a tick. PlayerID is set
// when the event should be routed to a single client (rejections,
// personal loot).
type Event struct {
	Type     EventType      `json:"type"`
	PlayerID string         `json:"playerId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func rejected(playerID, reason string) Event {
	return Event{
		Type:     EventActionRejected,
		PlayerID: playerID,
		Data:     map[string]any{"reason": reason},
	}
}
