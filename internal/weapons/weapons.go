// Package weapons holds the fixed lookup tables used across the pipeline:
// the upstream map-name translation table and the weapon id → category
// map (spec §6, §4.11).
package weapons

// mapNames translates the upstream's internal map identifier to its
// player-facing name. Unknown inputs pass through unchanged.
var mapNames = map[string]string{
	"Baltic_Main":    "Erangel",
	"Desert_Main":    "Miramar",
	"DihorOtok_Main": "Vikendi",
	"Savage_Main":    "Sanhok",
	"Summerland_Main": "Karakin",
	"Chimera_Main":   "Paramo",
	"Tiger_Main":     "Taego",
	"Kiki_Main":      "Deston",
	"Neon_Main":      "Rondo",
	"Range_Main":     "Range",
}

// TranslateMapName returns the player-facing map name, or internalName
// unchanged if it has no entry in the fixed table.
func TranslateMapName(internalName string) string {
	if translated, ok := mapNames[internalName]; ok {
		return translated
	}
	return internalName
}

// Category is one of the 13 fixed weapon categories.
type Category string

const (
	CategoryAR          Category = "AR"
	CategoryDMR         Category = "DMR"
	CategorySR          Category = "SR"
	CategorySMG         Category = "SMG"
	CategoryShotgun     Category = "Shotgun"
	CategoryLMG         Category = "LMG"
	CategoryPistol      Category = "Pistol"
	CategoryMelee       Category = "Melee"
	CategoryThrowable   Category = "Throwable"
	CategorySpecial     Category = "Special"
	CategoryVehicle     Category = "Vehicle"
	CategoryEnvironment Category = "Environment"
	CategoryOther       Category = "Other"
)

// weaponCategories is the fixed upstream weapon-id → category map. It is
// not exhaustive of every id the upstream has ever issued, but covers the
// ids that appear in kill/damage telemetry from live matches; anything
// absent falls back to CategoryOther.
var weaponCategories = map[string]Category{
	// Assault rifles
	"WeapM416":      CategoryAR,
	"WeapAK47":      CategoryAR,
	"WeapSCAR-L":    CategoryAR,
	"WeapG36C":      CategoryAR,
	"WeapAUG":       CategoryAR,
	"WeapGroza":     CategoryAR,
	"WeapQBZ":       CategoryAR,
	"WeapBerylM762": CategoryAR,
	"WeapACE32":     CategoryAR,
	"WeapK2":        CategoryAR,
	"WeapMk47Mutant": CategoryAR,

	// Designated marksman rifles
	"WeapSKS":      CategoryDMR,
	"WeapMini14":   CategoryDMR,
	"WeapSLR":      CategoryDMR,
	"WeapVSS":      CategoryDMR,
	"WeapQBU":      CategoryDMR,
	"WeapMk12":     CategoryDMR,
	"WeapMK14":     CategoryDMR,
	"WeapDragunov": CategoryDMR,

	// Sniper rifles
	"WeapKar98k":  CategorySR,
	"WeapM24":     CategorySR,
	"WeapAWM":     CategorySR,
	"WeapWin1894": CategorySR,
	"WeapMosinNagant": CategorySR,
	"WeapLynx":    CategorySR,

	// Submachine guns
	"WeapUMP":      CategorySMG,
	"WeapVector":   CategorySMG,
	"WeapUZI":      CategorySMG,
	"WeapThompson": CategorySMG,
	"WeapBizonPP19": CategorySMG,
	"WeapMP5K":     CategorySMG,
	"WeapP90":      CategorySMG,

	// Shotguns
	"WeapS12K":   CategoryShotgun,
	"WeapS1897":  CategoryShotgun,
	"WeapS686":   CategoryShotgun,
	"WeapSawnoff": CategoryShotgun,
	"WeapDP12":   CategoryShotgun,

	// Light machine guns
	"WeapDP28": CategoryLMG,
	"WeapM249": CategoryLMG,
	"WeapMG3":  CategoryLMG,

	// Pistols
	"WeapP1911":   CategoryPistol,
	"WeapP92":     CategoryPistol,
	"WeapR1895":   CategoryPistol,
	"WeapR45":     CategoryPistol,
	"WeapSkorpion": CategoryPistol,
	"WeapDeagle":  CategoryPistol,
	"WeapP18":     CategoryPistol,

	// Melee
	"WeapMachete":  CategoryMelee,
	"WeapCrowbar":  CategoryMelee,
	"WeapPan":      CategoryMelee,
	"WeapSickle":   CategoryMelee,

	// Throwables
	"WeapFragGrenade": CategoryThrowable,
	"WeapMolotov":     CategoryThrowable,
	"WeapSmokeBomb":   CategoryThrowable,
	"WeapStickyGrenade": CategoryThrowable,

	// Special / crossbow-style and crate weapons
	"WeapCrossbow": CategorySpecial,
	"WeapWin94":    CategorySpecial,
	"WeapPanzerfaust": CategorySpecial,

	// Vehicles (player ran over by, or killed from inside)
	"UAZ":          CategoryVehicle,
	"Dacia":        CategoryVehicle,
	"Motorbike":    CategoryVehicle,
	"Buggy":        CategoryVehicle,
	"AquaRail":     CategoryVehicle,

	// Environment (bluezone, fall damage, drowning)
	"BlueZone":    CategoryEnvironment,
	"RedZone":     CategoryEnvironment,
	"Drown":       CategoryEnvironment,
	"FallDamage":  CategoryEnvironment,
}

// WeaponCategory returns the full 13-category classification for a weapon
// id, defaulting to CategoryOther for ids outside the fixed table.
func WeaponCategory(weaponID string) Category {
	if cat, ok := weaponCategories[weaponID]; ok {
		return cat
	}
	return CategoryOther
}

// playerFacingCollapse maps the three least player-relevant categories onto
// Other for the 10-category player-facing view (spec §4.11: "the first
// nine plus Other").
var playerFacingCollapse = map[Category]bool{
	CategorySpecial:     true,
	CategoryVehicle:     true,
	CategoryEnvironment: true,
}

// PlayerFacingCategory collapses Special/Vehicle/Environment into Other,
// keeping the first nine categories distinct.
func PlayerFacingCategory(weaponID string) Category {
	cat := WeaponCategory(weaponID)
	if playerFacingCollapse[cat] {
		return CategoryOther
	}
	return cat
}

// MatchTypeClass partitions an upstream game_type into the career
// aggregate's partition key (spec §4.11: "ranked", "normal", "all" — every
// match also rolls up into "all").
func MatchTypeClass(gameType string) string {
	switch gameType {
	case "competitive", "official", "custom-esports":
		return "ranked"
	default:
		return "normal"
	}
}
