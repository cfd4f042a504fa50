package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// nigerianStates is the canonical list of the 36 states plus the FCT.
var nigerianStates = []string{
	"Abia", "Adamawa", "Akwa Ibom", "Anambra", "Bauchi", "Bayelsa", "Benue",
	"Borno", "Cross River", "Delta", "Ebonyi", "Edo", "Ekiti", "Enugu",
	"Gombe", "Imo", "Jigawa", "Kaduna", "Kano", "Katsina", "Kebbi", "Kogi",
	"Kwara", "Lagos", "Nasarawa", "Niger", "Ogun", "Ondo", "Osun", "Oyo",
	"Plateau", "Rivers", "Sokoto", "Taraba", "Yobe", "Zamfara",
	"Federal Capital Territory",
}

// stateAliases maps common variants to the canonical state name.
// Keys are lowercase.
var stateAliases = map[string]string{
	"fct":                "Federal Capital Territory",
	"abuja":              "Federal Capital Territory",
	"fct abuja":          "Federal Capital Territory",
	"abuja fct":          "Federal Capital Territory",
	"akwa-ibom":          "Akwa Ibom",
	"cross-river":        "Cross River",
	"nassarawa":          "Nasarawa",
	"niger state":        "Niger",
	"oyo state":          "Oyo",
	"lagos state":        "Lagos",
	"ogun state":         "Ogun",
	"edo state":          "Edo",
	"delta state":        "Delta",
	"rivers state":       "Rivers",
	"kaduna state":       "Kaduna",
	"kano state":         "Kano",
	"port harcourt":      "Rivers",
	"federal capital territory abuja": "Federal Capital Territory",
}

var canonicalStates = func() map[string]string {
	m := make(map[string]string, len(nigerianStates))
	for _, s := range nigerianStates {
		m[strings.ToLower(s)] = s
	}
	return m
}()

var titleCaser = cases.Title(language.English)

// NormalizeState maps a scraped state name to its canonical form.
// Returns "" when the input cannot be resolved to a Nigerian state.
func NormalizeState(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, ".,")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return ""
	}

	if canonical, ok := canonicalStates[cleaned]; ok {
		return canonical
	}
	if canonical, ok := stateAliases[cleaned]; ok {
		return canonical
	}

	// Drop a trailing "state" qualifier and retry.
	if trimmed, ok := strings.CutSuffix(cleaned, " state"); ok {
		if canonical, found := canonicalStates[trimmed]; found {
			return canonical
		}
	}

	return ""
}

// NormalizeName tidies a scraped station or LGA name: collapses whitespace
// and title-cases fully upper- or lower-case input while leaving mixed-case
// names (e.g. "NIPCO CNG Ibafo") alone.
func NormalizeName(raw string) string {
	cleaned := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
	if cleaned == "" {
		return ""
	}
	if cleaned == strings.ToUpper(cleaned) || cleaned == strings.ToLower(cleaned) {
		return titleCaser.String(strings.ToLower(cleaned))
	}
	return cleaned
}

// States returns the canonical state list, alphabetical with the FCT last.
func States() []string {
	out := make([]string, len(nigerianStates))
	copy(out, nigerianStates)
	return out
}
