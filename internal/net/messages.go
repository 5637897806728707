package net

import (
	"deepspire/server/internal/save"
	"deepspire/server/internal/sim"
	"deepspire/server/internal/statesync"
)

// Client → server message types.
const (
	msgInput        = "input"
	msgCast         = "cast"
	msgTarget       = "target"
	msgLoot         = "loot"
	msgEquip        = "equip"
	msgUnequip      = "unequip"
	msgOpenChest    = "open_chest"
	msgBuy          = "buy"
	msgAdvanceFloor = "advance_floor"
	msgPing         = "ping"
)

// Server → client message types.
const (
	msgStateUpdate = "state_update"
	msgDeltaUpdate = "delta_update"
	msgEvent       = "event"
	msgPong        = "pong"
)

// clientMessage is the single envelope every client message arrives
// in; Type selects which fields are meaningful. Malformed or unknown
// messages are logged and dropped, never fatal to the connection.
type clientMessage struct {
	Type string `json:"type"`

	DX float64 `json:"dx,omitempty"`
	DY float64 `json:"dy,omitempty"`

	AbilityID string `json:"abilityId,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	LootID    string `json:"lootId,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	Slot      string `json:"slot,omitempty"`
	ChestID   string `json:"chestId,omitempty"`
	VendorID  string `json:"vendorId,omitempty"`
	OfferID   string `json:"offerId,omitempty"`

	SentAt int64 `json:"sentAt,omitempty"`
}

// command translates a client message into a simulation command, or
// nil for non-command messages.
func (m *clientMessage) command(playerID string) *sim.Command {
	switch m.Type {
	case msgInput:
		return &sim.Command{Type: sim.CommandMove, PlayerID: playerID, Move: &sim.MoveCommand{DX: m.DX, DY: m.DY}}
	case msgCast:
		return &sim.Command{Type: sim.CommandCast, PlayerID: playerID, Cast: &sim.CastCommand{AbilityID: m.AbilityID, TargetID: m.TargetID}}
	case msgTarget:
		return &sim.Command{Type: sim.CommandSelectTarget, PlayerID: playerID, Target: &sim.TargetCommand{TargetID: m.TargetID}}
	case msgLoot:
		return &sim.Command{Type: sim.CommandCollectLoot, PlayerID: playerID, Loot: &sim.LootCommand{LootID: m.LootID}}
	case msgEquip:
		return &sim.Command{Type: sim.CommandEquip, PlayerID: playerID, Equip: &sim.EquipCommand{ItemID: m.ItemID, Slot: m.Slot}}
	case msgUnequip:
		return &sim.Command{Type: sim.CommandUnequip, PlayerID: playerID, Equip: &sim.EquipCommand{Slot: m.Slot}}
	case msgOpenChest:
		return &sim.Command{Type: sim.CommandOpenChest, PlayerID: playerID, Chest: &sim.ChestCommand{ChestID: m.ChestID}}
	case msgBuy:
		return &sim.Command{Type: sim.CommandBuyVendor, PlayerID: playerID, Vendor: &sim.VendorCommand{VendorID: m.VendorID, OfferID: m.OfferID}}
	case msgAdvanceFloor:
		return &sim.Command{Type: sim.CommandAdvanceFloor, PlayerID: playerID}
	default:
		return nil
	}
}

// joinRequest creates a run or joins an existing one. Save is
// optional; without it the player starts fresh from the class table.
// Wallet registers a reward wallet up front; a save's wallet is used
// when the field is empty.
type joinRequest struct {
	RunID   string         `json:"runId,omitempty"`
	Name    string         `json:"name"`
	ClassID string         `json:"classId"`
	Wallet  string         `json:"wallet,omitempty"`
	Save    *save.SaveData `json:"save,omitempty"`
}

type joinResponse struct {
	RunID    string `json:"runId"`
	PlayerID string `json:"playerId"`
	TickRate int    `json:"tickRate"`
}

// stateEnvelope wraps a sync payload for the wire. Full payloads go
// out as state_update, deltas as delta_update.
type stateEnvelope struct {
	Type       string             `json:"type"`
	Tick       uint64             `json:"t"`
	ServerTime int64              `json:"serverTime"`
	State      *statesync.Payload `json:"state"`
}

// eventEnvelope carries gameplay events produced by a tick.
type eventEnvelope struct {
	Type       string      `json:"type"`
	Tick       uint64      `json:"t"`
	ServerTime int64       `json:"serverTime"`
	Events     []sim.Event `json:"events"`
}

type pongMessage struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// claimRequest asks for a signed reward attestation for a run.
type claimRequest struct {
	RunID  string `json:"runId"`
	Wallet string `json:"wallet"`
}

type rewardPoolResponse struct {
	Balance int64 `json:"balance"`
}

type diagnosticsRun struct {
	RunID       string `json:"runId"`
	Floor       int    `json:"floor"`
	Players     int    `json:"players"`
	Subscribers int    `json:"subscribers"`
	Tick        uint64 `json:"tick"`
}

type diagnosticsSubscriber struct {
	PlayerID      string `json:"playerId"`
	RunID         string `json:"runId"`
	State         string `json:"state"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
}
