package speech

import "strings"

// Language is a synthesis target the vendor supports.
type Language struct {
	Name string
	Code string
}

// Languages lists supported synthesis languages in display order.
var Languages = []Language{
	{"Bengali", "bn-IN"},
	{"English", "en-IN"},
	{"Gujarati", "gu-IN"},
	{"Hindi", "hi-IN"},
	{"Kannada", "kn-IN"},
	{"Malayalam", "ml-IN"},
	{"Marathi", "mr-IN"},
	{"Odia", "od-IN"},
	{"Punjabi", "pa-IN"},
	{"Tamil", "ta-IN"},
	{"Telugu", "te-IN"},
}

// LookupLanguage resolves a language code or display name, ignoring case.
func LookupLanguage(s string) (Language, bool) {
	s = strings.TrimSpace(s)
	for _, l := range Languages {
		if strings.EqualFold(l.Code, s) || strings.EqualFold(l.Name, s) {
			return l, true
		}
	}
	return Language{}, false
}
