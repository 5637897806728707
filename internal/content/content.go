// Package content holds the static game definition tables: classes,
// abilities, enemies, bosses, and floor themes. Everything here is
// read-only lookup data; the simulation copies values out and never
// mutates the tables.
package content

// ClassDefinition describes a playable class and its starting loadout.
type ClassDefinition struct {
	ID        string   `json:"id" jsonschema:"title=Class id,pattern=^[a-z0-9\\-]+$"`
	Name      string   `json:"name"`
	MaxHealth float64  `json:"maxHealth"`
	MaxMana   float64  `json:"maxMana"`
	Armor     float64  `json:"armor"`
	Resist    float64  `json:"resist"`
	Crit      float64  `json:"crit" jsonschema:"description=Base critical strike chance in [0,1]"`
	Abilities []string `json:"abilities" jsonschema:"description=Starting ability ids"`
}

// AbilityDefinition describes one castable ability.
type AbilityDefinition struct {
	ID           string  `json:"id" jsonschema:"title=Ability id,pattern=^[a-z0-9\\-]+$"`
	Name         string  `json:"name"`
	Damage       float64 `json:"damage"`
	Healing      float64 `json:"healing,omitempty"`
	ManaCost     float64 `json:"manaCost"`
	CooldownMS   int64   `json:"cooldownMs"`
	Range        float64 `json:"range"`
	AppliesBuff  string  `json:"appliesBuff,omitempty"`
	BuffDuration int64   `json:"buffDurationMs,omitempty"`
}

// EnemyDefinition describes one spawnable enemy archetype.
type EnemyDefinition struct {
	ID       string  `json:"id" jsonschema:"title=Enemy id,pattern=^[a-z0-9\\-]+$"`
	Name     string  `json:"name"`
	Health   float64 `json:"health"`
	Damage   float64 `json:"damage"`
	Speed    float64 `json:"speed" jsonschema:"description=Units per second"`
	Range    float64 `json:"range"`
	MinFloor int     `json:"minFloor"`
	XP       int     `json:"xp"`
	Gold     int     `json:"gold"`
}

// BossPhase describes one scripted boss mechanic. Threshold phases fire
// once when health drops below the fraction; interval phases repeat on
// a timer. Continuous effects (enrage, regenerate) are flags the
// simulation keeps raised, not one-shot events.
type BossPhase struct {
	ID         string  `json:"id"`
	Threshold  float64 `json:"threshold,omitempty" jsonschema:"description=Health fraction in (0,1) that triggers the phase"`
	IntervalMS int64   `json:"intervalMs,omitempty"`
	Summons    string  `json:"summons,omitempty" jsonschema:"description=Enemy id summoned by the phase"`
	SummonSize int     `json:"summonSize,omitempty"`
	Enrage     bool    `json:"enrage,omitempty"`
	Regenerate bool    `json:"regenerate,omitempty"`
	GroundID   string  `json:"groundEffect,omitempty"`
}

// BossDefinition describes a floor boss and its phase script.
type BossDefinition struct {
	ID       string      `json:"id" jsonschema:"title=Boss id,pattern=^[a-z0-9\\-]+$"`
	Name     string      `json:"name"`
	Health   float64     `json:"health"`
	Damage   float64     `json:"damage"`
	Speed    float64     `json:"speed"`
	Range    float64     `json:"range"`
	MinFloor int         `json:"minFloor"`
	Phases   []BossPhase `json:"phases,omitempty"`
}

// FileDefinitions models the canonical designer-authored content file.
// The schema generator under cmd/schema reflects this type so editors
// can validate the tables offline.
type FileDefinitions struct {
	Classes   []ClassDefinition   `json:"classes"`
	Abilities []AbilityDefinition `json:"abilities"`
	Enemies   []EnemyDefinition   `json:"enemies"`
	Bosses    []BossDefinition    `json:"bosses"`
}
