package assessment

import (
	"sort"
	"strings"
)

// Kind identifies a known section of a structured assessment reply.
type Kind string

const (
	SymptomSummary      Kind = "symptom_summary"
	PossibleExplanation Kind = "possible_explanation"
	LifestyleGuidance   Kind = "lifestyle_guidance"
	TraditionalRemedy   Kind = "traditional_remedy"
	WhenToSeeDoctor     Kind = "when_to_see_doctor"
	SafetyDisclaimer    Kind = "safety_disclaimer"
)

// Section is one titled slice of a model reply.
type Section struct {
	Kind Kind   `json:"kind"`
	Body string `json:"body"`
}

type marker struct {
	kind  Kind
	title string
	// variants[0] is the canonical marker the system prompt asks for.
	variants []string
}

// known is ordered the way the system prompt template lists the sections.
var known = []marker{
	{
		kind:  SymptomSummary,
		title: "Symptom Summary",
		variants: []string{
			"🧾 Symptom Summary",
			"🧾 **Symptom Summary**",
			"**Symptom Summary**",
			"Symptom Summary:",
		},
	},
	{
		kind:  PossibleExplanation,
		title: "Possible Explanation",
		variants: []string{
			"🧠 Possible Non-Diagnostic Explanation",
			"🧠 **Possible Non-Diagnostic Explanation**",
			"**Possible Non-Diagnostic Explanation**",
			"🧠 Possible Explanation",
			"**Possible Explanation**",
			"Possible Non-Diagnostic Explanation:",
		},
	},
	{
		kind:  LifestyleGuidance,
		title: "Lifestyle Guidance",
		variants: []string{
			"🧘 Lifestyle Guidance",
			"🧘 **Lifestyle Guidance**",
			"**Lifestyle Guidance**",
			"Lifestyle Guidance:",
		},
	},
	{
		kind:  TraditionalRemedy,
		title: "Traditional Remedy",
		variants: []string{
			"🌿 दादी माँ का नुस्खा",
			"🌿 **दादी माँ का नुस्खा**",
			"**दादी माँ का नुस्खा**",
			"🌿 Traditional Remedy",
			"**Traditional Remedy**",
		},
	},
	{
		kind:  WhenToSeeDoctor,
		title: "When to See a Doctor",
		variants: []string{
			"📅 When to See a Doctor",
			"📅 **When to See a Doctor**",
			"**When to See a Doctor**",
			"When to See a Doctor:",
		},
	},
	{
		kind:  SafetyDisclaimer,
		title: "Safety Disclaimer",
		variants: []string{
			"🔒 Safety Disclaimer",
			"🔒 **Safety Disclaimer**",
			"**Safety Disclaimer**",
		},
	},
}

// Required lists the kinds whose joint presence makes a reply a complete assessment.
var Required = []Kind{SymptomSummary, PossibleExplanation, LifestyleGuidance}

// Kinds returns every known kind in template order.
func Kinds() []Kind {
	out := make([]Kind, len(known))
	for i, m := range known {
		out[i] = m.kind
	}
	return out
}

// Marker returns the canonical section marker for k, or "" if k is unknown.
func Marker(k Kind) string {
	if m, ok := lookup(k); ok {
		return m.variants[0]
	}
	return ""
}

// Title returns the human-readable title for k.
func Title(k Kind) string {
	if m, ok := lookup(k); ok {
		return m.title
	}
	return string(k)
}

func lookup(k Kind) (marker, bool) {
	for _, m := range known {
		if m.kind == k {
			return m, true
		}
	}
	return marker{}, false
}

// Parse slices a model reply into the known sections it contains, in document
// order. Each kind appears at most once; kinds without a marker are omitted.
func Parse(raw string) []Section {
	type hit struct {
		kind      Kind
		start     int
		bodyStart int
	}

	var hits []hit
	for _, m := range known {
		start, n := earliest(raw, m.variants, 0)
		if start < 0 {
			continue
		}
		hits = append(hits, hit{kind: m.kind, start: start, bodyStart: start + n})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	sections := make([]Section, 0, len(hits))
	for _, h := range hits {
		end := len(raw)
		for _, m := range known {
			if m.kind == h.kind {
				continue
			}
			next, _ := earliest(raw, m.variants, h.bodyStart)
			// A marker at or before our own start is a substring artefact.
			if next > h.start && next < end {
				end = next
			}
		}
		sections = append(sections, Section{Kind: h.kind, Body: cleanBody(raw[h.bodyStart:end])})
	}
	return sections
}

// earliest returns the offset and length of the first variant occurring in s at
// or after from. Ties go to the longer variant. Returns -1 when none occur.
func earliest(s string, variants []string, from int) (int, int) {
	if from > len(s) {
		return -1, 0
	}
	best, bestLen := -1, 0
	for _, v := range variants {
		i := strings.Index(s[from:], v)
		if i < 0 {
			continue
		}
		i += from
		if best < 0 || i < best || (i == best && len(v) > bestLen) {
			best, bestLen = i, len(v)
		}
	}
	return best, bestLen
}

func cleanBody(s string) string {
	s = Clean(s)
	s = strings.TrimLeft(s, " \t\r\n:")
	s = strings.TrimRight(s, " \t\r\n#")
	return s
}

// Clean strips emphasis from a reply. Lines bulleted with "*" are rewritten to
// "-" first so list structure survives.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "*\t") {
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + "-" + trimmed[1:]
		}
	}
	out := strings.Join(lines, "\n")
	out = strings.ReplaceAll(out, "*", "")
	out = strings.ReplaceAll(out, "__", "")
	return out
}

// Complete reports whether every required kind is present.
func Complete(sections []Section) bool {
	return len(Missing(sections)) == 0
}

// Missing returns the required kinds absent from sections.
func Missing(sections []Section) []Kind {
	have := make(map[Kind]bool, len(sections))
	for _, s := range sections {
		have[s.Kind] = true
	}
	var missing []Kind
	for _, k := range Required {
		if !have[k] {
			missing = append(missing, k)
		}
	}
	return missing
}

// Find returns the section of kind k.
func Find(sections []Section, k Kind) (Section, bool) {
	for _, s := range sections {
		if s.Kind == k {
			return s, true
		}
	}
	return Section{}, false
}

// Qualifies reports whether text carries an assessment the report can be built
// from: a Symptom Summary or Possible Explanation marker.
func Qualifies(text string) bool {
	for _, k := range []Kind{SymptomSummary, PossibleExplanation} {
		m, _ := lookup(k)
		if start, _ := earliest(text, m.variants, 0); start >= 0 {
			return true
		}
	}
	return false
}
