package sim

import (
	"math"
	"sort"

	"deepspire/server/internal/dungeon"
)

const (
	enemyAttackIntervalTicks = 10
	chargeRangeMin           = 150.0
	chargeDashSpeedMult      = 3.0
	leashArriveRadius        = 15.0
)

// occupiedRooms returns the ids of rooms holding at least one living,
// non-stealthed player. Enemy AI runs only for these rooms, which is
// what keeps per-tick cost bounded regardless of floor size.
func (e *Engine) occupiedRooms() map[int]bool {
	occupied := make(map[int]bool, len(e.state.Players))
	for _, p := range e.state.Players {
		if !p.Alive || p.Stealthed() {
			continue
		}
		if room := e.state.Dungeon.RoomAt(p.X, p.Y); room != nil {
			occupied[room.ID] = true
		} else {
			// Corridor: the player still counts for the room whose
			// padding they are within.
			for _, room := range e.state.Dungeon.Rooms {
				if room.WithinPadding(p.X, p.Y, dungeon.CorridorPadding) {
					occupied[room.ID] = true
				}
			}
		}
	}
	return occupied
}

// eligibleTargets returns the players an enemy in room may target:
// alive, not stealthed, within the room's corridor padding.
func (e *Engine) eligibleTargets(room *dungeon.Room) []*Player {
	targets := make([]*Player, 0, len(e.state.Players))
	for _, p := range e.state.Players {
		if !p.Alive || p.Stealthed() {
			continue
		}
		if room.WithinPadding(p.X, p.Y, dungeon.CorridorPadding) {
			targets = append(targets, p)
		}
	}
	return targets
}

// runEnemyAI advances combat behavior for every enemy in an occupied
// room. Hidden enemies are AI-inert until revealed.
func (e *Engine) runEnemyAI(dt float64) []Event {
	var events []Event
	occupied := e.occupiedRooms()

	// Deterministic iteration order across runs with the same state.
	roomIDs := make([]int, 0, len(occupied))
	for id := range occupied {
		roomIDs = append(roomIDs, id)
	}
	sort.Ints(roomIDs)

	for _, roomID := range roomIDs {
		room := e.state.Dungeon.Room(roomID)
		if room == nil {
			continue
		}
		targets := e.eligibleTargets(room)
		for _, enemy := range room.Enemies {
			if !enemy.Alive || enemy.Hidden {
				continue
			}
			events = append(events, e.stepEnemy(enemy, targets, dt)...)
		}
	}
	return events
}

func (e *Engine) stepEnemy(enemy *dungeon.Enemy, targets []*Player, dt float64) []Event {
	var events []Event
	tracking := e.state.Tracking

	target := e.currentTarget(enemy, targets)
	if target == nil {
		target = nearestPlayer(enemy, targets)
		if target == nil {
			e.leashEnemy(enemy, dt)
			return events
		}
		// Fresh acquisition: patrolling enemies are already alert, so
		// their delay is shortened. Entering combat ends the patrol.
		delay := uint64(aggroDelayTicks)
		if enemy.Patrol != nil || enemy.WasPatrolling {
			delay = patrolAggroDelayTicks
		}
		if enemy.Patrol != nil {
			enemy.Patrol = nil
			enemy.WasPatrolling = true
		}
		enemy.TargetID = target.ID
		tracking.AggroTimers[enemy.ID] = e.tick + delay
	}
	delete(tracking.LeashTimers, enemy.ID)

	if readyAt, ok := tracking.AggroTimers[enemy.ID]; ok && e.tick < readyAt {
		return events
	}

	if enemy.Regenerating && enemy.Health < enemy.MaxHealth {
		enemy.Health = math.Min(enemy.MaxHealth, enemy.Health+enemy.MaxHealth*0.01)
	}

	if charge, ok := tracking.ChargeStates[enemy.ID]; ok {
		events = append(events, e.resolveCharge(enemy, charge, dt)...)
		return events
	}

	dist := math.Hypot(target.X-enemy.X, target.Y-enemy.Y)

	// Elites wind up a charge when the target is far but visible.
	if enemy.Elite && dist > chargeRangeMin {
		tracking.ChargeStates[enemy.ID] = &ChargeState{
			TargetX:     target.X,
			TargetY:     target.Y,
			ReleaseTick: e.tick + chargeWindupTicks,
		}
		return events
	}

	if dist > enemy.Range {
		dx, dy := (target.X-enemy.X)/dist, (target.Y-enemy.Y)/dist
		enemy.X += dx * enemy.Speed * dt
		enemy.Y += dy * enemy.Speed * dt
		return events
	}

	attackKey := enemy.ID + "_attack"
	if readyAt, ok := tracking.Cooldowns[attackKey]; ok && e.tick < readyAt {
		return events
	}
	tracking.Cooldowns[attackKey] = e.tick + enemyAttackIntervalTicks

	damage := enemy.Damage
	if enemy.Enraged {
		damage *= 1.5
	}
	e.damagePlayer(target, damage, &events)
	return events
}

// currentTarget revalidates the enemy's stored target against the
// eligibility rules, clearing it when stale.
func (e *Engine) currentTarget(enemy *dungeon.Enemy, targets []*Player) *Player {
	if enemy.TargetID == "" {
		return nil
	}
	for _, p := range targets {
		if p.ID == enemy.TargetID {
			return p
		}
	}
	enemy.TargetID = ""
	return nil
}

// leashEnemy counts ticks without an eligible target and walks the
// enemy back to its spawn point once the timeout elapses.
func (e *Engine) leashEnemy(enemy *dungeon.Enemy, dt float64) {
	tracking := e.state.Tracking
	enemy.TargetID = ""
	tracking.LeashTimers[enemy.ID]++
	if tracking.LeashTimers[enemy.ID] < leashTimeoutTicks {
		return
	}
	dist := math.Hypot(enemy.SpawnX-enemy.X, enemy.SpawnY-enemy.Y)
	if dist <= leashArriveRadius {
		delete(tracking.LeashTimers, enemy.ID)
		return
	}
	dx, dy := (enemy.SpawnX-enemy.X)/dist, (enemy.SpawnY-enemy.Y)/dist
	enemy.X += dx * enemy.Speed * dt
	enemy.Y += dy * enemy.Speed * dt
}

func (e *Engine) resolveCharge(enemy *dungeon.Enemy, charge *ChargeState, dt float64) []Event {
	var events []Event
	if e.tick < charge.ReleaseTick {
		return events
	}
	dist := math.Hypot(charge.TargetX-enemy.X, charge.TargetY-enemy.Y)
	if dist <= leashArriveRadius {
		delete(e.state.Tracking.ChargeStates, enemy.ID)
		for _, p := range e.state.Players {
			if p.Alive && math.Hypot(p.X-enemy.X, p.Y-enemy.Y) <= enemy.Range {
				e.damagePlayer(p, enemy.Damage*2, &events)
			}
		}
		return events
	}
	dx, dy := (charge.TargetX-enemy.X)/dist, (charge.TargetY-enemy.Y)/dist
	step := enemy.Speed * chargeDashSpeedMult * dt
	if step > dist {
		step = dist
	}
	enemy.X += dx * step
	enemy.Y += dy * step
	return events
}

// advancePatrols moves every out-of-combat patrol enemy along its
// waypoint list, reversing direction at either end (ping-pong, never a
// loop).
func (e *Engine) advancePatrols(dt float64) {
	for _, room := range e.state.Dungeon.Rooms {
		for _, enemy := range room.Enemies {
			if !enemy.Alive || enemy.Patrol == nil || enemy.TargetID != "" {
				continue
			}
			patrol := enemy.Patrol
			if len(patrol.Waypoints) < 2 {
				continue
			}
			next := patrol.Index + patrol.Direction
			if next < 0 || next >= len(patrol.Waypoints) {
				patrol.Direction = -patrol.Direction
				next = patrol.Index + patrol.Direction
			}
			wp := patrol.Waypoints[next]
			dist := math.Hypot(wp.X-enemy.X, wp.Y-enemy.Y)
			step := enemy.Speed * dt
			if dist <= step {
				enemy.X, enemy.Y = wp.X, wp.Y
				patrol.Index = next
				continue
			}
			enemy.X += (wp.X - enemy.X) / dist * step
			enemy.Y += (wp.Y - enemy.Y) / dist * step
		}
	}
}

func nearestPlayer(enemy *dungeon.Enemy, players []*Player) *Player {
	var best *Player
	bestDist := math.MaxFloat64
	for _, p := range players {
		if d := math.Hypot(p.X-enemy.X, p.Y-enemy.Y); d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}
