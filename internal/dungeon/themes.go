package dungeon

// Theme names the floor's environment set.
type Theme string

const (
	ThemeCrypt    Theme = "crypt"
	ThemeInferno  Theme = "inferno"
	ThemeFrozen   Theme = "frozen"
	ThemeSwamp    Theme = "swamp"
	ThemeTreasure Theme = "treasure"
	ThemeShadow   Theme = "shadow"
)

// ThemeModifiers scale loot and hazards for a themed floor.
type ThemeModifiers struct {
	GoldMultiplier  float64 `json:"goldMultiplier"`
	TrapMultiplier  float64 `json:"trapMultiplier"`
	ChestMultiplier float64 `json:"chestMultiplier"`
	MimicMultiplier float64 `json:"mimicMultiplier"`
	HazardDamage    float64 `json:"hazardDamage,omitempty"`
	LowVisibility   bool    `json:"lowVisibility,omitempty"`
	SlowMovement    bool    `json:"slowMovement,omitempty"`
}

// themeCycle is the repeating assignment applied from floor 3 onward.
// Slot 3 alternates between treasure and shadow every full cycle; the
// remaining slots fall back to crypt.
var themeCycle = [6]Theme{ThemeInferno, ThemeFrozen, ThemeSwamp, "", ThemeCrypt, ThemeCrypt}

// ThemeForFloor derives the theme purely from the floor number, so all
// players in a run agree without consulting the RNG.
func ThemeForFloor(floor int) Theme {
	if floor <= 2 {
		return ThemeCrypt
	}
	slot := (floor - 3) % 6
	if slot == 3 {
		cycle := (floor - 3) / 6
		if cycle%2 == 0 {
			return ThemeTreasure
		}
		return ThemeShadow
	}
	return themeCycle[slot]
}

// ModifiersForTheme returns the multiplier set for a theme.
func ModifiersForTheme(theme Theme, floor int) ThemeModifiers {
	mods := ThemeModifiers{GoldMultiplier: 1, TrapMultiplier: 1, ChestMultiplier: 1, MimicMultiplier: 1}
	switch theme {
	case ThemeInferno:
		mods.TrapMultiplier = 1.5
		mods.HazardDamage = 4 + float64(floor)
	case ThemeFrozen:
		mods.SlowMovement = true
		mods.TrapMultiplier = 1.2
	case ThemeSwamp:
		mods.SlowMovement = true
		mods.HazardDamage = 2 + float64(floor)/2
	case ThemeTreasure:
		mods.GoldMultiplier = 2
		mods.ChestMultiplier = 2.5
		mods.MimicMultiplier = 3
	case ThemeShadow:
		mods.LowVisibility = true
		mods.TrapMultiplier = 1.4
	case ThemeCrypt:
		// Baseline.
	}
	return mods
}
