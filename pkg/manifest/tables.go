package manifest

// watermarkSeason identifies the release an icon watermark belongs to.
type watermarkSeason struct {
	Name   string
	Number int
}

// watermarkSeasons maps an icon watermark file name to the season or
// expansion that introduced (or reissued) the item.
var watermarkSeasons = map[string]watermarkSeason{
	// Seasons
	"36418dde751148bd3b95a023d491ea73.png": {"Season of the Splicer", 14},
	"d105aa342f2d0c53a90a28477552f61f.png": {"Season of Arrivals", 11},
	"7b41678824a620d4f295984862702179.png": {"Season of the Risen", 16},
	"7b48b09fbb50634680168d5880b16bc9.png": {"Season of the Chosen", 13},
	"914322d11262322c839a5388db2a4943.png": {"Season of the Lost", 15},
	"41d05b7cb5cc0a384af07ee9b7d36dd2.png": {"Season of the Haunted", 17},
	"0b441021fbc328e6d0e2abc895f5c96e.png": {"Season of Plunder", 18},
	"bce51cf90464e28026140df77c4eb6ce.png": {"Season of the Hunt", 12},
	"9bfaa5536772e2f3ef1252813a21c4d1.png": {"Season of the Seraph", 19},
	"e4a1a5aaeb9f65cc5276fd4d86d1c1b2.png": {"Season of Defiance", 20},
	"e775dcb3d47e3d54e0e24fbdb64b5763.png": {"Season of the Deep", 21},
	"d4141b2247cf999c73d3dc409f9d00f7.png": {"Season of the Witch", 22},
	"0ac354c1c326441716ddb15d2c158c59.png": {"Season of the Wish", 23},

	// Episodes
	"6f17d323d81dd683086d88a9268f8106.png": {"Episode: Echoes", 24},
	"b9620c9768c298515caeb183a3388163.png": {"Episode: Revenant", 25},
	"6129365b4fad6754f2b8c4478fc3c4ac.png": {"Episode: Heresy", 26},

	// Expansions
	"50d36366595897d49b5d33e101c8fd07.png": {"The Final Shape", 24},
	"fc31e8ede7cc15908d6e2b39167afbcf.png": {"Lightfall", 20},
	"c23c9ec8709fecbc678ea1d0a42f6a41.png": {"The Witch Queen", 16},
	"c1c542d176c85e1e0c8c041f1690c5e4.png": {"Beyond Light", 12},
	"6a52f7cd9099990157c739a8260babea.png": {"Shadowkeep", 8},
	"e10338777d1d8633e073846e613b6c77.png": {"Forsaken", 4},

	// Raids and dungeons
	"bcc26708e314306fb2fc8cb98fcbf47e.png": {"Grasp of Avarice/30th Anniversary", 15},
	"a15754752f40aaf7b1b00aadb70a8f35.png": {"Garden of Salvation", 8},
	"5232219633cc4d90570bffda36caccf4.png": {"Vow of the Disciple", 16},
	"2dc17f123b7449b14144e76cfbeb2309.png": {"King's Fall (Reprised)", 17},
	"fc02418ad2002351a3f88faa5b14eb88.png": {"Crota's End (Reprised)", 22},
	"03d000a7f097b6e12012b8c2eab0b1ad.png": {"Root of Nightmares", 20},
	"0d6c3365022ed3b059eac467b076978f.png": {"Salvation's Edge", 24},
	"661c84a377389a3b8a1fc38b44189b41.png": {"Vespers Host", 25},

	// Iron Banner and Trials
	"4f28dc0f39238fe25d298a894ea71389.png": {"Iron Banner", 15},
	"ae5c7f708a36f754c2f68c65c88ab9aa.png": {"Trials of Osiris", 11},
	"a5e27dc822aa72787f388bd1fc115803.png": {"Trials of Osiris (Reprised)", 17},
	"7d815c943977fe71bbf00caf1bd9c514.png": {"King's Fall (Reprised)", 17},

	// Core playlists
	"aeb95eb1abe8e45e1fe2573d6b3ab3c5.png": {"Crucible (Pre-Beyond Light)", 7},
	"2c022e452f395db7b1daec1cb44631fc.png": {"Gambit/Vanguard", 4},
	"b2410a70904ab0b09a716054c83fbcfd.png": {"Vanguard/World", 12},
	"75adde12e4e9c9fb237e492d8258eb73.png": {"Dares of Eternity", 15},

	// Events
	"50c3ebe414c6946429934d79504922fa.png": {"Solstice", 14},
	"53dc0b02306726ff1517af33ac908cef.png": {"Festival of the Lost", 15},
	"83fbcacd223402c09af4b7ab067f8cce.png": {"Dawning", 12},

	// Legacy and world drops
	"a0556509f8825756b6b89f59f90528ec.png": {"World Drop (Current)", 23},
	"249813e647271a8227bae0d8a39ed505.png": {"Nightfall", 19},
	"e0c16042274fd7d9cbffc4489e340c5d.png": {"Black Armory", 5},
	"58d3ec8338cc9746a2e0cf901fbcec0e.png": {"Menagerie/Opulence", 7},
	"da5f961ef97b78293cc498978c10e178.png": {"Crucible (Redrix Era)", 4},
	"7ba9d804508dd083ec20fcdb8ba0869d.png": {"Curse of Osiris", 2},
	"859498e47c73b11f9e4af20bf6cfea16.png": {"Fishing/Deep Dive", 21},
}

// itemTypeNames maps DestinyItemType codes to display names.
var itemTypeNames = map[int]string{
	0:  "None",
	1:  "Currency",
	2:  "Armor",
	3:  "Weapon",
	7:  "Message",
	8:  "Engram",
	9:  "Consumable",
	10: "ExchangeMaterial",
	11: "MissionReward",
	12: "QuestStep",
	13: "QuestStepComplete",
	14: "Emblem",
	15: "Quest",
	16: "Subclass",
	17: "ClanBanner",
	18: "Aura",
	19: "Mod",
	20: "Dummy",
	21: "Ship",
	22: "Vehicle",
	23: "Emote",
	24: "Ghost",
	25: "Package",
	26: "Bounty",
	27: "Wrapper",
	28: "SeasonalArtifact",
	29: "Finisher",
	30: "Pattern",
}

// tierNames maps TierType codes to display names.
var tierNames = map[int]string{
	0: "Unknown",
	1: "Currency",
	2: "Basic",
	3: "Common",
	4: "Rare",
	5: "Legendary",
	6: "Exotic",
}

// Search ranking. Anything not listed sorts after the listed entries.
var (
	categoryOrder = []string{"Weapon", "Armor", "Mod"}
	tierOrder     = []string{"Exotic", "Legendary", "Rare", "Common", "Basic"}
)

// ItemTypeName returns the display name of an item type code.
func ItemTypeName(itemType int) string {
	if name, ok := itemTypeNames[itemType]; ok {
		return name
	}
	return "Unknown"
}

// TierName returns the display name of a tier. An explicit name from the
// definition wins over the code table.
func TierName(tierType int, tierTypeName string) string {
	if tierTypeName != "" {
		return tierTypeName
	}
	if name, ok := tierNames[tierType]; ok {
		return name
	}
	return "Unknown"
}

func rank(order []string, value string) int {
	for i, v := range order {
		if v == value {
			return i
		}
	}
	return len(order)
}
