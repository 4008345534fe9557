package intake

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Patient holds the fields the report header needs.
type Patient struct {
	Name     string `json:"name,omitempty"`
	Age      string `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Location string `json:"location,omitempty"`
}

// Complete reports whether the fields required for a report are present.
// Location is optional.
func (p Patient) Complete() bool {
	return len(p.Missing()) == 0
}

// Missing lists the absent required fields using the labels shown to users.
func (p Patient) Missing() []string {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.Age == "" {
		missing = append(missing, "age")
	}
	if p.Gender == "" {
		missing = append(missing, "gender/sex")
	}
	return missing
}

// Field names a patient attribute the extractor can fill.
type Field string

const (
	FieldName     Field = "name"
	FieldAge      Field = "age"
	FieldGender   Field = "gender"
	FieldLocation Field = "location"
)

func (p *Patient) get(f Field) string {
	switch f {
	case FieldName:
		return p.Name
	case FieldAge:
		return p.Age
	case FieldGender:
		return p.Gender
	case FieldLocation:
		return p.Location
	}
	return ""
}

func (p *Patient) set(f Field, v string) {
	switch f {
	case FieldName:
		p.Name = v
	case FieldAge:
		p.Age = v
	case FieldGender:
		p.Gender = v
	case FieldLocation:
		p.Location = v
	}
}

// rule is one extraction attempt. Rules run in table order; the first rule
// whose pattern matches and whose validator accepts the capture fills the field.
type rule struct {
	field  Field
	re     *regexp.Regexp
	accept func(string) (string, bool)
}

const (
	nameClass     = `\p{L}[\p{L} .'\-]*`
	locationClass = `\p{L}[\p{L} ,.'\-]*`
)

var rules = []rule{
	{FieldName, regexp.MustCompile(`(?i)\bmy name is\s+(` + nameClass + `)`), acceptName},
	{FieldName, regexp.MustCompile(`(?i)\bname\s*:\s*(` + nameClass + `)`), acceptName},
	{FieldName, regexp.MustCompile(`(?i)\bI am\s+(` + nameClass + `)`), acceptName},
	{FieldName, regexp.MustCompile(`(?i)\bI['’]m\s+(` + nameClass + `)`), acceptName},

	{FieldAge, regexp.MustCompile(`(?i)\bI am\s+(\d{1,3})\s+years?\s+old\b`), acceptAge},
	{FieldAge, regexp.MustCompile(`(?i)\bI['’]m\s+(\d{1,3})\b`), acceptAge},
	{FieldAge, regexp.MustCompile(`(?i)\bI am\s+(\d{1,3})\b`), acceptAge},
	{FieldAge, regexp.MustCompile(`(?i)\bage\s*(?:is|:|=|-)?\s*(\d{1,3})\b`), acceptAge},
	{FieldAge, regexp.MustCompile(`(?i)\b(\d{1,3})\s*[- ]?(?:years?|yrs?)[- ]old\b`), acceptAge},
	{FieldAge, regexp.MustCompile(`^\s*(\d{1,3})\s*$`), acceptAge},

	{FieldLocation, regexp.MustCompile(`(?i)\bI am from\s+(` + locationClass + `)`), acceptLocation},
	{FieldLocation, regexp.MustCompile(`(?i)\bI['’]m from\s+(` + locationClass + `)`), acceptLocation},
	// Bare "in X" only takes capitalised places; "in my chest" is not a location.
	{FieldLocation, regexp.MustCompile(`\b[Ii]n\s+(\p{Lu}[\p{L} ,.'\-]*)`), acceptLocation},
	{FieldLocation, regexp.MustCompile(`(?i)\blocation\s*:?\s*(` + locationClass + `)`), acceptLocation},
	{FieldLocation, regexp.MustCompile(`(?i)\blive in\s+(` + locationClass + `)`), acceptLocation},
	{FieldLocation, regexp.MustCompile(`(?i)\breside in\s+(` + locationClass + `)`), acceptLocation},
}

// genderPhrases is checked most specific first so "trans woman" is not read as
// Female and "female" never as Male. Phrases match whole words only.
var genderPhrases = []struct {
	gender  string
	phrases []string
}{
	{"Non-binary", []string{"non binary", "nonbinary", "enby", "genderqueer", "gender fluid", "genderfluid"}},
	{"Transgender", []string{"transgender", "trans man", "trans woman", "trans person"}},
	{"Female", []string{"female", "woman", "girl", "lady"}},
	{"Male", []string{"male", "man", "boy", "gentleman"}},
	{"Other", []string{"gender other", "gender is other", "sex other", "other gender", "prefer not to say"}},
}

var (
	bareNameRE = regexp.MustCompile(`^[\p{L} .'\-]+$`)

	// Words that end a name or location capture.
	stopWords = set("and", "but", "i", "im", "i'm", "with", "from", "who", "aged", "age",
		"years", "year", "since", "for", "have", "has", "having", "my", "am", "where", "living")

	// First words that show an "I am X" capture is not a name.
	notNames = set("a", "an", "the", "not", "from", "in", "at", "so", "very", "really", "just",
		"also", "still", "feeling", "having", "suffering", "experiencing", "getting", "going",
		"currently", "unable", "worried", "scared", "tired", "sick", "ill", "fine", "good",
		"okay", "ok", "better", "worse", "here", "male", "female", "man", "woman", "boy", "girl",
		"yes", "no", "thanks", "thank", "sure", "pregnant", "diabetic", "allergic", "on", "taking")

	// First words that show an "in X" capture is not a place.
	notPlaces = set("my", "the", "a", "an", "this", "that", "his", "her", "their", "our", "your",
		"morning", "evening", "night", "afternoon", "bed", "general", "pain", "between", "front",
		"back", "addition", "case", "past", "last", "breathing", "it")
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Extract fills empty patient fields from a free-text message. Fields that are
// already set are never overwritten. When awaitingInfo is true a short
// letters-only message is taken as the name.
func Extract(message string, p Patient, awaitingInfo bool) Patient {
	for _, r := range rules {
		if p.get(r.field) != "" {
			continue
		}
		m := r.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if v, ok := r.accept(m[1]); ok {
			p.set(r.field, v)
		}
	}

	if p.Gender == "" {
		p.Gender = DetectGender(message)
	}

	if p.Name == "" && awaitingInfo {
		if v, ok := wholeMessageName(message); ok {
			p.Name = v
		}
	}
	return p
}

// DetectGender returns the first gender category whose phrasing occurs in
// message as whole words, or "".
func DetectGender(message string) string {
	norm := " " + normalizeWords(message) + " "
	for _, g := range genderPhrases {
		for _, phrase := range g.phrases {
			if strings.Contains(norm, " "+phrase+" ") {
				return g.gender
			}
		}
	}
	return ""
}

// normalizeWords lowercases s and collapses every run of non-letter,
// non-digit runes into a single space.
func normalizeWords(s string) string {
	var sb strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}

func acceptName(raw string) (string, bool) {
	words := leadingWords(raw, 4)
	if len(words) == 0 || notNames[strings.ToLower(words[0])] {
		return "", false
	}
	return validName(strings.Join(words, " "))
}

func wholeMessageName(message string) (string, bool) {
	msg := strings.TrimSpace(message)
	if utf8.RuneCountInString(msg) >= 30 || len(strings.Fields(msg)) > 4 || !bareNameRE.MatchString(msg) {
		return "", false
	}
	first := strings.ToLower(strings.Fields(msg)[0])
	if notNames[first] || stopWords[first] || DetectGender(msg) != "" {
		return "", false
	}
	return validName(msg)
}

func validName(s string) (string, bool) {
	s = strings.Trim(s, " .'-")
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 30 || strings.ContainsFunc(s, unicode.IsDigit) {
		return "", false
	}
	return s, true
}

func acceptAge(raw string) (string, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n >= 120 {
		return "", false
	}
	return strconv.Itoa(n), true
}

func acceptLocation(raw string) (string, bool) {
	words := leadingWords(raw, 0)
	if len(words) == 0 || notPlaces[strings.ToLower(strings.Trim(words[0], ",.'-"))] {
		return "", false
	}
	s := strings.Trim(strings.Join(words, " "), " ,.'-")
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 50 {
		return "", false
	}
	return s, true
}

// leadingWords returns the words of s up to the first stop word. A positive
// limit caps the number of words kept.
func leadingWords(s string, limit int) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if stopWords[strings.ToLower(strings.Trim(w, ",.'-"))] {
			break
		}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
