package history

// significantDomains lists domains whose every update is meaningful even
// without a state-value change (continuously varying attributes). Rows for
// these entities bypass the significance filter.
var significantDomains = map[string]struct{}{
	"climate":        {},
	"device_tracker": {},
	"humidifier":     {},
	"thermostat":     {},
	"water_heater":   {},
}

// needAttributeDomains lists domains whose consumers always need the full
// attribute payload; minimal-response compaction never applies to them.
var needAttributeDomains = map[string]struct{}{
	"climate":        {},
	"humidifier":     {},
	"input_datetime": {},
	"thermostat":     {},
	"water_heater":   {},
}

func isSignificantDomain(domain string) bool {
	_, ok := significantDomains[domain]
	return ok
}

func needsFullAttributes(domain string) bool {
	_, ok := needAttributeDomains[domain]
	return ok
}
