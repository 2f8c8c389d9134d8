package usecase

// Domain dictionaries for the electronics knowledge base. Lookups are
// whole-word and lowercase.

var defaultMisspellings = map[string]string{
	"resister":   "resistor",
	"risistor":   "resistor",
	"capacater":  "capacitor",
	"capasitor":  "capacitor",
	"transister": "transistor",
	"indutor":    "inductor",
	"volatge":    "voltage",
	"currnet":    "current",
	"soder":      "solder",
	"ceramilc":   "ceramic",
}

var defaultAbbreviations = map[string][]string{
	"res":  {"resistor", "resistance"},
	"cap":  {"capacitor", "capacitance"},
	"ind":  {"inductor", "inductance"},
	"pcb":  {"printed circuit board"},
	"smd":  {"surface mount device", "surface mount"},
	"smt":  {"surface mount technology"},
	"ic":   {"integrated circuit"},
	"led":  {"light emitting diode"},
	"psu":  {"power supply unit", "power supply"},
	"mcu":  {"microcontroller"},
	"vreg": {"voltage regulator"},
}

var defaultSynonyms = map[string][]string{
	"price":     {"cost"},
	"cost":      {"price"},
	"datasheet": {"specification"},
	"spec":      {"specification"},
	"wattage":   {"power rating"},
	"tolerance": {"accuracy"},
}

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "how": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"to": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"with": {},
}
