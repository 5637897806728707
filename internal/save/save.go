// Package save validates and converts client-submitted character
// saves. A save is untrusted input: every field is range-checked and
// all violations are reported together so the client can fix them in
// one round trip.
package save

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"deepspire/server/internal/attest"
	"deepspire/server/internal/content"
	"deepspire/server/internal/sim"
)

const (
	nameMinLen   = 1
	nameMaxLen   = 30
	levelMax     = 50
	goldMax      = 99999
	floorMax     = 30
	maxAbilities = 10
	maxBackpack  = 20
	maxLives     = 5
)

// AbilityData is one saved ability rank.
type AbilityData struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
}

// ItemData is one saved backpack or equipment item.
type ItemData struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Slot  string  `json:"slot,omitempty"`
	Power float64 `json:"power"`
}

// SaveData is a character save as submitted by a client.
type SaveData struct {
	Name      string              `json:"name"`
	ClassID   string              `json:"classId"`
	Level     int                 `json:"level"`
	XP        int                 `json:"xp"`
	Gold      int                 `json:"gold"`
	Floor     int                 `json:"floor"`
	Lives     *int                `json:"lives,omitempty"`
	Abilities []AbilityData       `json:"abilities"`
	Backpack  []ItemData          `json:"backpack"`
	Equipment map[string]ItemData `json:"equipment,omitempty"`

	// Wallet links the character to an on-chain account for reward
	// attestation. Optional; validated only when present.
	Wallet string `json:"wallet,omitempty"`
}

// Validate range-checks every field and returns all violations at
// once, or nil for a clean save.
func (s *SaveData) Validate() error {
	el := errors.NewErrorList()

	if len(s.Name) < nameMinLen || len(s.Name) > nameMaxLen {
		el.Add(fmt.Errorf("name must be %d-%d characters, got %d", nameMinLen, nameMaxLen, len(s.Name)))
	}
	if content.ClassByID(s.ClassID) == nil {
		el.Add(fmt.Errorf("unknown class %q", s.ClassID))
	}
	if s.Level < 1 || s.Level > levelMax {
		el.Add(fmt.Errorf("level must be 1-%d, got %d", levelMax, s.Level))
	}
	if s.XP < 0 {
		el.Add(fmt.Errorf("xp must not be negative, got %d", s.XP))
	}
	if s.Gold < 0 || s.Gold > goldMax {
		el.Add(fmt.Errorf("gold must be 0-%d, got %d", goldMax, s.Gold))
	}
	if s.Floor < 1 || s.Floor > floorMax {
		el.Add(fmt.Errorf("floor must be 1-%d, got %d", floorMax, s.Floor))
	}
	if s.Lives != nil && (*s.Lives < 0 || *s.Lives > maxLives) {
		el.Add(fmt.Errorf("lives must be 0-%d, got %d", maxLives, *s.Lives))
	}
	if len(s.Abilities) > maxAbilities {
		el.Add(fmt.Errorf("at most %d abilities, got %d", maxAbilities, len(s.Abilities)))
	}
	for _, a := range s.Abilities {
		if content.AbilityByID(a.ID) == nil {
			el.Add(fmt.Errorf("unknown ability %q", a.ID))
		}
		if a.Rank < 1 {
			el.Add(fmt.Errorf("ability %q rank must be positive, got %d", a.ID, a.Rank))
		}
	}
	if len(s.Backpack) > maxBackpack {
		el.Add(fmt.Errorf("at most %d backpack items, got %d", maxBackpack, len(s.Backpack)))
	}
	for _, item := range s.Backpack {
		if item.ID == "" {
			el.Add(fmt.Errorf("backpack item with empty id"))
		}
		if item.Power < 0 {
			el.Add(fmt.Errorf("item %q power must not be negative", item.ID))
		}
	}
	if s.Wallet != "" && !attest.ValidWallet(s.Wallet) {
		el.Add(fmt.Errorf("wallet %q is not a valid address", s.Wallet))
	}

	return el.Err()
}

// ToPlayer builds a run player from a validated save. The caller must
// have run Validate first; ToPlayer trusts its input.
func (s *SaveData) ToPlayer(playerID string) *sim.Player {
	class := content.ClassByID(s.ClassID)
	p := sim.NewPlayer(playerID, s.Name, class)
	p.Level = s.Level
	p.XP = s.XP
	p.Gold = s.Gold
	if s.Lives != nil {
		p.Lives = *s.Lives
	}
	if len(s.Abilities) > 0 {
		p.Abilities = p.Abilities[:0]
		for _, a := range s.Abilities {
			p.Abilities = append(p.Abilities, sim.Ability{ID: a.ID, Rank: a.Rank})
		}
	}
	for _, item := range s.Backpack {
		p.Backpack = append(p.Backpack, sim.Item{ID: item.ID, Name: item.Name, Slot: item.Slot, Power: item.Power})
	}
	for slot, item := range s.Equipment {
		p.Equipment[slot] = sim.Item{ID: item.ID, Name: item.Name, Slot: item.Slot, Power: item.Power}
	}
	return p
}

// FromPlayer captures a player back into save form. The transport
// layer checkpoints every player each tick so the latest state is
// always downloadable.
func FromPlayer(p *sim.Player, floor int, wallet string) *SaveData {
	lives := p.Lives
	s := &SaveData{
		Name:    p.Name,
		ClassID: p.ClassID,
		Level:   p.Level,
		XP:      p.XP,
		Gold:    p.Gold,
		Floor:   floor,
		Lives:   &lives,
		Wallet:  wallet,
	}
	for _, a := range p.Abilities {
		s.Abilities = append(s.Abilities, AbilityData{ID: a.ID, Rank: a.Rank})
	}
	for _, item := range p.Backpack {
		s.Backpack = append(s.Backpack, ItemData{ID: item.ID, Name: item.Name, Slot: item.Slot, Power: item.Power})
	}
	if len(p.Equipment) > 0 {
		s.Equipment = make(map[string]ItemData, len(p.Equipment))
		for slot, item := range p.Equipment {
			s.Equipment[slot] = ItemData{ID: item.ID, Name: item.Name, Slot: item.Slot, Power: item.Power}
		}
	}
	return s
}
