package match

import "larder/internal/util"

// aliasTable maps known alternate names to the canonical ingredient name.
// Keys are raw alias spellings; lookups go through ComparisonKey so spacing
// and punctuation variants hit the same entry. The table is deliberately
// small and curated: membership here is the only thing besides exact key
// equality that resolves automatically.
var aliasTable = map[string]string{
	"scallion":            "green onion",
	"scallions":           "green onion",
	"spring onion":        "green onion",
	"spring onions":       "green onion",
	"cilantro leaves":     "cilantro",
	"coriander leaves":    "cilantro",
	"fresh coriander":     "cilantro",
	"garbanzo bean":       "chickpea",
	"garbanzo beans":      "chickpea",
	"aubergine":           "eggplant",
	"courgette":           "zucchini",
	"confectioners sugar": "powdered sugar",
	"icing sugar":         "powdered sugar",
	"caster sugar":        "superfine sugar",
	"capsicum":            "bell pepper",
	"rocket":              "arugula",
	"corn starch":         "cornstarch",
	"bicarbonate of soda": "baking soda",
	"ap flour":            "all purpose flour",
	"plain flour":         "all purpose flour",
	"extra virgin olive oil": "olive oil",
	"evoo":                   "olive oil",
	"kosher salt":            "salt",
	"table salt":             "salt",
	"sea salt":               "salt",
	"garlic cloves":          "garlic",
	"garlic clove":           "garlic",
	"roma tomato":            "tomato",
	"roma tomatoes":          "tomato",
	"scotch bonnet":          "habanero",
}

func defaultAliases() map[string]string {
	out := make(map[string]string, len(aliasTable))
	for alias, canonical := range aliasTable {
		out[util.ComparisonKey(alias)] = canonical
	}
	return out
}
