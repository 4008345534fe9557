package locales

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// Language is a supported UI language, named the way the language selector
// names it.
type Language string

const (
	English Language = "english"
	Hindi   Language = "hindi"
	Marathi Language = "marathi"
	Kannada Language = "kannada"
)

// Strings holds the user-visible text for one language.
type Strings struct {
	Greeting             string `json:"greeting"`
	Placeholder          string `json:"placeholder"`
	ReportTitle          string `json:"report_title"`
	DownloadButton       string `json:"download_button"`
	PlaceholderText      string `json:"placeholder_text"`
	InfoRequest          string `json:"info_request"`
	ErrorApology         string `json:"error_apology"`
	EmergencyAlert       string `json:"emergency_alert"`
	ConsultationRequired string `json:"consultation_required"`
	DetailsRequired      string `json:"details_required"`
}

//go:embed locales.json
var raw []byte

var table map[Language]Strings

func init() {
	if err := json.Unmarshal(raw, &table); err != nil {
		panic(fmt.Sprintf("locales: decode embedded table: %v", err))
	}
	en := table[English]
	for lang, s := range table {
		table[lang] = s.withFallback(en)
	}
}

var aliases = map[string]Language{
	"en": English, "english": English,
	"hi": Hindi, "hindi": Hindi, "हिन्दी": Hindi, "हिंदी": Hindi,
	"mr": Marathi, "marathi": Marathi, "मराठी": Marathi,
	"kn": Kannada, "kannada": Kannada, "ಕನ್ನಡ": Kannada,
}

// Parse maps a language name or ISO 639-1 code to a Language.
func Parse(s string) (Language, bool) {
	lang, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return lang, ok
}

// Supported lists the supported languages.
func Supported() []Language {
	return []Language{English, Hindi, Marathi, Kannada}
}

// Get returns the strings for lang. Unknown languages get English, and
// strings a language lacks fall back to English.
func Get(lang Language) Strings {
	if s, ok := table[lang]; ok {
		return s
	}
	return table[English]
}

// InfoRequestFor formats the info request for the missing fields.
func (s Strings) InfoRequestFor(missing []string) string {
	return fmt.Sprintf(s.InfoRequest, strings.Join(missing, ", "))
}

// DetailsRequiredFor formats the report gating message for the missing fields.
func (s Strings) DetailsRequiredFor(missing []string) string {
	return fmt.Sprintf(s.DetailsRequired, strings.Join(missing, ", "))
}

func (s Strings) withFallback(en Strings) Strings {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Greeting, en.Greeting)
	fill(&s.Placeholder, en.Placeholder)
	fill(&s.ReportTitle, en.ReportTitle)
	fill(&s.DownloadButton, en.DownloadButton)
	fill(&s.PlaceholderText, en.PlaceholderText)
	fill(&s.InfoRequest, en.InfoRequest)
	fill(&s.ErrorApology, en.ErrorApology)
	fill(&s.EmergencyAlert, en.EmergencyAlert)
	fill(&s.ConsultationRequired, en.ConsultationRequired)
	fill(&s.DetailsRequired, en.DetailsRequired)
	return s
}
