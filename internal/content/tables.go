package content

// Built-in tables. These mirror the shipped definition file; lookups
// index by id at package init so hot paths never scan slices.

var Classes = []ClassDefinition{
	{ID: "warrior", Name: "Warrior", MaxHealth: 220, MaxMana: 60, Armor: 28, Resist: 12, Crit: 0.05, Abilities: []string{"cleave", "shield-wall"}},
	{ID: "mage", Name: "Mage", MaxHealth: 140, MaxMana: 160, Armor: 8, Resist: 26, Crit: 0.08, Abilities: []string{"firebolt", "frost-nova"}},
	{ID: "rogue", Name: "Rogue", MaxHealth: 170, MaxMana: 90, Armor: 14, Resist: 14, Crit: 0.18, Abilities: []string{"backstab", "vanish"}},
	{ID: "cleric", Name: "Cleric", MaxHealth: 180, MaxMana: 130, Armor: 18, Resist: 22, Crit: 0.05, Abilities: []string{"smite", "mend"}},
}

var Abilities = []AbilityDefinition{
	{ID: "cleave", Name: "Cleave", Damage: 34, ManaCost: 12, CooldownMS: 3000, Range: 90},
	{ID: "shield-wall", Name: "Shield Wall", ManaCost: 20, CooldownMS: 14000, Range: 0, AppliesBuff: "shield_wall", BuffDuration: 6000},
	{ID: "firebolt", Name: "Firebolt", Damage: 42, ManaCost: 18, CooldownMS: 2500, Range: 420},
	{ID: "frost-nova", Name: "Frost Nova", Damage: 22, ManaCost: 30, CooldownMS: 9000, Range: 160},
	{ID: "backstab", Name: "Backstab", Damage: 55, ManaCost: 22, CooldownMS: 5000, Range: 70},
	{ID: "vanish", Name: "Vanish", ManaCost: 25, CooldownMS: 20000, Range: 0, AppliesBuff: "vanish", BuffDuration: 4000},
	{ID: "smite", Name: "Smite", Damage: 30, ManaCost: 14, CooldownMS: 3000, Range: 380},
	{ID: "mend", Name: "Mend", Healing: 48, ManaCost: 26, CooldownMS: 6000, Range: 400},
}

var Enemies = []EnemyDefinition{
	{ID: "skeleton", Name: "Skeleton", Health: 60, Damage: 8, Speed: 95, Range: 55, MinFloor: 1, XP: 12, Gold: 4},
	{ID: "zombie", Name: "Zombie", Health: 95, Damage: 11, Speed: 60, Range: 55, MinFloor: 1, XP: 15, Gold: 5},
	{ID: "cultist", Name: "Cultist", Health: 70, Damage: 14, Speed: 90, Range: 300, MinFloor: 2, XP: 20, Gold: 8},
	{ID: "hellhound", Name: "Hellhound", Health: 85, Damage: 16, Speed: 150, Range: 60, MinFloor: 3, XP: 26, Gold: 10},
	{ID: "wraith", Name: "Wraith", Health: 110, Damage: 19, Speed: 110, Range: 240, MinFloor: 4, XP: 34, Gold: 14},
	{ID: "bone-golem", Name: "Bone Golem", Health: 190, Damage: 24, Speed: 70, Range: 80, MinFloor: 5, XP: 48, Gold: 20},
}

var Bosses = []BossDefinition{
	{
		ID: "gravelord", Name: "The Gravelord", Health: 900, Damage: 30, Speed: 85, Range: 90, MinFloor: 1,
		Phases: []BossPhase{
			{ID: "summon-thralls", Threshold: 0.75, Summons: "skeleton", SummonSize: 3},
			{ID: "bone-storm", Threshold: 0.5, GroundID: "bone_storm"},
			{ID: "enrage", Threshold: 0.25, Enrage: true},
		},
	},
	{
		ID: "pyre-queen", Name: "Pyre Queen", Health: 1200, Damage: 38, Speed: 95, Range: 320, MinFloor: 3,
		Phases: []BossPhase{
			{ID: "cinder-wave", IntervalMS: 12000, GroundID: "cinder_wave"},
			{ID: "hatch-brood", Threshold: 0.6, Summons: "hellhound", SummonSize: 2},
			{ID: "second-wind", Threshold: 0.3, Regenerate: true},
		},
	},
	{
		ID: "hollow-king", Name: "The Hollow King", Health: 1700, Damage: 46, Speed: 80, Range: 110, MinFloor: 6,
		Phases: []BossPhase{
			{ID: "court-call", Threshold: 0.7, Summons: "wraith", SummonSize: 2},
			{ID: "crown-of-ash", Threshold: 0.45, GroundID: "crown_of_ash"},
			{ID: "last-stand", Threshold: 0.2, Enrage: true},
		},
	},
}

var (
	classByID   = make(map[string]*ClassDefinition, len(Classes))
	abilityByID = make(map[string]*AbilityDefinition, len(Abilities))
	enemyByID   = make(map[string]*EnemyDefinition, len(Enemies))
	bossByID    = make(map[string]*BossDefinition, len(Bosses))
)

func init() {
	for i := range Classes {
		classByID[Classes[i].ID] = &Classes[i]
	}
	for i := range Abilities {
		abilityByID[Abilities[i].ID] = &Abilities[i]
	}
	for i := range Enemies {
		enemyByID[Enemies[i].ID] = &Enemies[i]
	}
	for i := range Bosses {
		bossByID[Bosses[i].ID] = &Bosses[i]
	}
}

// ClassByID returns the class definition or nil.
func ClassByID(id string) *ClassDefinition { return classByID[id] }

// AbilityByID returns the ability definition or nil.
func AbilityByID(id string) *AbilityDefinition { return abilityByID[id] }

// EnemyByID returns the enemy definition or nil.
func EnemyByID(id string) *EnemyDefinition { return enemyByID[id] }

// BossByID returns the boss definition or nil.
func BossByID(id string) *BossDefinition { return bossByID[id] }

// EnemiesForFloor returns every enemy archetype unlocked at the floor.
func EnemiesForFloor(floor int) []EnemyDefinition {
	out := make([]EnemyDefinition, 0, len(Enemies))
	for _, def := range Enemies {
		if def.MinFloor <= floor {
			out = append(out, def)
		}
	}
	return out
}

// BossesForFloor returns every boss unlocked at the floor. The list is
// never empty: the lowest-floor boss backstops floor 1.
func BossesForFloor(floor int) []BossDefinition {
	out := make([]BossDefinition, 0, len(Bosses))
	for _, def := range Bosses {
		if def.MinFloor <= floor {
			out = append(out, def)
		}
	}
	if len(out) == 0 {
		out = append(out, Bosses[0])
	}
	return out
}
