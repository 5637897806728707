package sim

import (
	"fmt"
	"math"

	"deepspire/server/internal/content"
	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/rng"
)

// applyCommand validates and executes one buffered command. Malformed
// or ineligible input rejects that single action with a reason; it
// never terminates the run.
func (e *Engine) applyCommand(cmd Command) []Event {
	p := e.state.PlayerByID(cmd.PlayerID)
	if p == nil {
		return []Event{rejected(cmd.PlayerID, ReasonUnknownPlayer)}
	}

	switch cmd.Type {
	case CommandMove:
		return e.applyMove(p, cmd.Move)
	case CommandCast:
		return e.applyCast(p, cmd.Cast)
	case CommandSelectTarget:
		return e.applySelectTarget(p, cmd.Target)
	case CommandCollectLoot:
		return e.applyCollectLoot(p, cmd.Loot)
	case CommandEquip:
		return e.applyEquip(p, cmd.Equip)
	case CommandUnequip:
		return e.applyUnequip(p, cmd.Equip)
	case CommandOpenChest:
		return e.applyOpenChest(p, cmd.Chest)
	case CommandBuyVendor:
		return e.applyBuyVendor(p, cmd.Vendor)
	case CommandAdvanceFloor:
		return e.applyAdvanceFloor(p)
	default:
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
}

// applyMove stores movement intent; the tick's movement pass consumes
// it. Dead players keep their intent so respawn resumes naturally —
// this is one of the two tracking maps that survive floor advances.
func (e *Engine) applyMove(p *Player, move *MoveCommand) []Event {
	if move == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	dx, dy := move.DX, move.DY
	if length := math.Hypot(dx, dy); length > 1 {
		dx /= length
		dy /= length
	}
	e.state.Tracking.PlayerMovement[p.ID] = dungeon.Vec2{X: dx, Y: dy}
	return nil
}

func (e *Engine) applyCast(p *Player, cast *CastCommand) []Event {
	if cast == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	if !p.Alive {
		return []Event{rejected(p.ID, ReasonPlayerDead)}
	}
	ability := p.AbilityByID(cast.AbilityID)
	def := content.AbilityByID(cast.AbilityID)
	if ability == nil || def == nil {
		return []Event{rejected(p.ID, ReasonUnknownAbility)}
	}

	key := CooldownKey(p.ID, cast.AbilityID)
	if readyAt, ok := e.state.Tracking.Cooldowns[key]; ok && e.tick < readyAt {
		return []Event{rejected(p.ID, ReasonCooldownActive)}
	}
	if p.Mana < def.ManaCost {
		return []Event{rejected(p.ID, ReasonNotEnoughMana)}
	}

	var events []Event

	if def.Damage > 0 {
		targetID := cast.TargetID
		if targetID == "" {
			targetID = p.TargetID
		}
		enemy := e.state.EnemyByID(targetID)
		if enemy == nil || !enemy.Alive || enemy.Hidden {
			return []Event{rejected(p.ID, ReasonInvalidTarget)}
		}
		if math.Hypot(enemy.X-p.X, enemy.Y-p.Y) > def.Range {
			return []Event{rejected(p.ID, ReasonOutOfRange)}
		}
		damage := def.Damage * (1 + 0.25*float64(ability.Rank-1))
		if e.combatRNG.Chance(p.Crit()) {
			damage *= 1.5
		}
		e.damageEnemy(enemy, damage, p, &events)
	}

	if def.Healing > 0 {
		p.Health = math.Min(p.MaxHealth, p.Health+def.Healing*(1+0.25*float64(ability.Rank-1)))
	}

	if def.AppliesBuff != "" {
		if !p.HasBuff(def.AppliesBuff) {
			buff := Buff{ID: def.AppliesBuff, RemainingMS: def.BuffDuration}
			switch def.AppliesBuff {
			case "vanish", "stealth":
				buff.Stealth = true
			case "shield_wall":
				buff.Armor = 40
			}
			p.Buffs = append(p.Buffs, buff)
		}
	}

	p.Mana -= def.ManaCost
	e.state.Tracking.Cooldowns[key] = e.tick + uint64(def.CooldownMS/TickMS)

	events = append(events, Event{
		Type:     EventAbilityCast,
		PlayerID: p.ID,
		Data:     map[string]any{"abilityId": cast.AbilityID},
	})
	return events
}

func (e *Engine) applySelectTarget(p *Player, target *TargetCommand) []Event {
	if target == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	if target.TargetID == "" {
		p.TargetID = ""
		return nil
	}
	enemy := e.state.EnemyByID(target.TargetID)
	if enemy == nil || !enemy.Alive || enemy.Hidden {
		return []Event{rejected(p.ID, ReasonInvalidTarget)}
	}
	p.TargetID = target.TargetID
	return nil
}

func (e *Engine) applyCollectLoot(p *Player, loot *LootCommand) []Event {
	if loot == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	if !p.Alive {
		return []Event{rejected(p.ID, ReasonPlayerDead)}
	}
	for i, drop := range e.state.PendingLoot {
		if drop.ID != loot.LootID {
			continue
		}
		if math.Hypot(drop.X-p.X, drop.Y-p.Y) > LootCollectRange {
			return []Event{rejected(p.ID, ReasonOutOfRange)}
		}
		p.Gold += drop.Gold
		if drop.Item.ID != "" && len(p.Backpack) < backpackCapacity {
			p.Backpack = append(p.Backpack, drop.Item)
		}
		e.state.PendingLoot = append(e.state.PendingLoot[:i], e.state.PendingLoot[i+1:]...)
		return []Event{{
			Type:     EventLootCollected,
			PlayerID: p.ID,
			Data:     map[string]any{"lootId": drop.ID, "gold": drop.Gold},
		}}
	}
	return []Event{rejected(p.ID, ReasonLootNotFound)}
}

func (e *Engine) applyEquip(p *Player, equip *EquipCommand) []Event {
	if equip == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	for i, item := range p.Backpack {
		if item.ID != equip.ItemID {
			continue
		}
		slot := equip.Slot
		if slot == "" {
			slot = item.Slot
		}
		// Swap: anything already in the slot returns to the backpack.
		if current, ok := p.Equipment[slot]; ok {
			p.Backpack[i] = current
		} else {
			p.Backpack = append(p.Backpack[:i], p.Backpack[i+1:]...)
		}
		p.Equipment[slot] = item
		return nil
	}
	return []Event{rejected(p.ID, ReasonItemNotFound)}
}

func (e *Engine) applyUnequip(p *Player, equip *EquipCommand) []Event {
	if equip == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	item, ok := p.Equipment[equip.Slot]
	if !ok {
		return []Event{rejected(p.ID, ReasonItemNotFound)}
	}
	if len(p.Backpack) >= backpackCapacity {
		return []Event{rejected(p.ID, ReasonItemNotFound)}
	}
	delete(p.Equipment, equip.Slot)
	p.Backpack = append(p.Backpack, item)
	return nil
}

// applyOpenChest enforces the chest rules: in range, unlocked, still
// closed, and the player alive. Each failing precondition has its own
// reason so clients can explain the refusal.
func (e *Engine) applyOpenChest(p *Player, chest *ChestCommand) []Event {
	if chest == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	target := e.findChest(chest.ChestID)
	if target == nil {
		return []Event{rejected(p.ID, ReasonChestNotFound)}
	}
	if !p.Alive {
		return []Event{rejected(p.ID, ReasonPlayerDead)}
	}
	if math.Hypot(target.X-p.X, target.Y-p.Y) > ChestOpenRange {
		return []Event{rejected(p.ID, ReasonOutOfRange)}
	}
	if target.Locked {
		return []Event{rejected(p.ID, ReasonChestLocked)}
	}
	if target.Open {
		return []Event{rejected(p.ID, ReasonChestAlreadyOpen)}
	}

	target.Open = true
	var events []Event

	if target.Mimic {
		events = append(events, e.revealMimic(target, p)...)
		return events
	}

	r := e.lootRNG(target.ID)
	gold := int(float64(10*target.Tier*e.state.Floor) * e.state.Dungeon.ThemeMods.GoldMultiplier)
	p.Gold += gold
	if r.Chance(0.5) && len(p.Backpack) < backpackCapacity {
		p.Backpack = append(p.Backpack, Item{
			ID:    fmt.Sprintf("item-chest-%s", target.ID),
			Name:  fmt.Sprintf("Tier %d Cache Find", target.Tier),
			Slot:  rng.Pick(r, []string{"weapon", "armor", "trinket"}),
			Power: float64(target.Tier) * r.NextFloat(8, 14),
		})
	}
	events = append(events, Event{
		Type:     EventChestOpened,
		PlayerID: p.ID,
		Data:     map[string]any{"chestId": target.ID, "gold": gold},
	})
	return events
}

func (e *Engine) findChest(id string) *dungeon.Chest {
	for _, room := range e.state.Dungeon.Rooms {
		for _, chest := range room.Chests {
			if chest.ID == id {
				return chest
			}
		}
	}
	return nil
}

// revealMimic swaps the chest for a hostile enemy at its position.
func (e *Engine) revealMimic(chest *dungeon.Chest, opener *Player) []Event {
	room := e.state.Dungeon.Room(opener.RoomID)
	if room == nil {
		return nil
	}
	scale := 1 + 0.15*float64(e.state.Floor-1)
	mimic := &dungeon.Enemy{
		ID:        "mimic-" + chest.ID,
		DefID:     "mimic",
		Name:      "Mimic",
		X:         chest.X,
		Y:         chest.Y,
		Health:    120 * scale,
		MaxHealth: 120 * scale,
		Damage:    18 * scale,
		Speed:     130,
		Range:     60,
		Alive:     true,
		Rare:      true,
		TargetID:  opener.ID,
		XP:        40 * e.state.Floor,
		Gold:      30 * e.state.Floor,
		RoomID:    room.ID,
		SpawnX:    chest.X,
		SpawnY:    chest.Y,
	}
	room.Enemies = append(room.Enemies, mimic)
	room.Cleared = false
	return []Event{{
		Type:     EventMimicRevealed,
		PlayerID: opener.ID,
		Data:     map[string]any{"chestId": chest.ID, "enemyId": mimic.ID},
	}}
}

// vendorOffers is the fixed stock every vendor kind carries.
var vendorOffers = map[string][]Item{
	"blacksmith": {
		{ID: "offer-iron-blade", Name: "Iron Blade", Slot: "weapon", Power: 12, Price: 60},
		{ID: "offer-steel-plate", Name: "Steel Plate", Slot: "armor", Power: 10, Price: 55},
	},
	"alchemist": {
		{ID: "offer-health-draught", Name: "Health Draught", Power: 0, Price: 25},
		{ID: "offer-mana-draught", Name: "Mana Draught", Power: 0, Price: 25},
	},
	"curio": {
		{ID: "offer-lucky-charm", Name: "Lucky Charm", Slot: "trinket", Power: 8, Price: 80},
		{ID: "offer-wolf-pup", Name: "Wolf Pup", Power: 0, Price: 120},
	},
}

// playerPet returns the player's living pet or nil. One pet per player.
func (e *Engine) playerPet(playerID string) *Pet {
	for _, pet := range e.state.Pets {
		if pet.OwnerID == playerID && pet.Alive {
			return pet
		}
	}
	return nil
}

func (e *Engine) applyBuyVendor(p *Player, vendor *VendorCommand) []Event {
	if vendor == nil {
		return []Event{rejected(p.ID, ReasonUnknownCommand)}
	}
	if !p.Alive {
		return []Event{rejected(p.ID, ReasonPlayerDead)}
	}
	var found *dungeon.Vendor
	for _, room := range e.state.Dungeon.Rooms {
		for i := range room.Vendors {
			if room.Vendors[i].ID == vendor.VendorID {
				found = &room.Vendors[i]
			}
		}
	}
	if found == nil {
		return []Event{rejected(p.ID, ReasonVendorNotFound)}
	}
	if math.Hypot(found.X-p.X, found.Y-p.Y) > VendorRange {
		return []Event{rejected(p.ID, ReasonOutOfRange)}
	}
	for _, offer := range vendorOffers[found.Kind] {
		if offer.ID != vendor.OfferID {
			continue
		}
		if p.Gold < offer.Price {
			return []Event{rejected(p.ID, ReasonNotEnoughGold)}
		}

		// The wolf pup is a companion, not cargo: it joins the party
		// instead of the backpack.
		if offer.ID == "offer-wolf-pup" {
			if e.playerPet(p.ID) != nil {
				return []Event{rejected(p.ID, ReasonPetAlreadyOwned)}
			}
			p.Gold -= offer.Price
			pet := &Pet{
				ID:        fmt.Sprintf("pet-%s-%d", p.ID, e.tick),
				OwnerID:   p.ID,
				Name:      offer.Name,
				X:         p.X + 20,
				Y:         p.Y + 20,
				RoomID:    p.RoomID,
				Health:    80,
				MaxHealth: 80,
				Damage:    9,
				Alive:     true,
			}
			e.state.Pets = append(e.state.Pets, pet)
			return []Event{{
				Type:     EventPetSummoned,
				PlayerID: p.ID,
				Data:     map[string]any{"petId": pet.ID, "vendorId": found.ID},
			}}
		}

		if len(p.Backpack) >= backpackCapacity {
			return []Event{rejected(p.ID, ReasonItemNotFound)}
		}
		p.Gold -= offer.Price
		purchased := offer
		purchased.ID = fmt.Sprintf("%s-%s-%d", offer.ID, p.ID, e.tick)
		p.Backpack = append(p.Backpack, purchased)

		// Draughts apply immediately instead of occupying a slot.
		switch offer.ID {
		case "offer-health-draught":
			p.Backpack = p.Backpack[:len(p.Backpack)-1]
			p.Health = math.Min(p.MaxHealth, p.Health+80)
		case "offer-mana-draught":
			p.Backpack = p.Backpack[:len(p.Backpack)-1]
			p.Mana = math.Min(p.MaxMana, p.Mana+60)
		}

		return []Event{{
			Type:     EventVendorPurchase,
			PlayerID: p.ID,
			Data:     map[string]any{"vendorId": found.ID, "offerId": offer.ID},
		}}
	}
	return []Event{rejected(p.ID, ReasonItemNotFound)}
}
