package report

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arogya/internal/assessment"
	"github.com/MikeSquared-Agency/arogya/internal/intake"
)

const (
	Title            = "Arogya AI Health Report"
	AnonymousName    = "Anonymous User"
	NotProvided      = "Not provided"
	EmergencyWarning = "⚠️ EMERGENCY WARNING: This may require immediate medical attention. Please contact emergency services or visit the nearest hospital immediately."
	Disclaimer       = "This is not a replacement for a licensed medical opinion. Always consult a real doctor for serious or persistent conditions."
)

// Order is the canonical order of report sections. The model's own Safety
// Disclaimer is never rendered; Disclaimer replaces it.
var Order = []assessment.Kind{
	assessment.SymptomSummary,
	assessment.PossibleExplanation,
	assessment.LifestyleGuidance,
	assessment.TraditionalRemedy,
	assessment.WhenToSeeDoctor,
}

// structured lists the kinds whose bodies are split into blocks.
var structured = map[assessment.Kind]bool{
	assessment.SymptomSummary:      true,
	assessment.PossibleExplanation: true,
}

// Header is the patient information block.
type Header struct {
	Name        string    `json:"name"`
	Age         string    `json:"age"`
	Gender      string    `json:"gender"`
	Location    string    `json:"location,omitempty"`
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BlockKind distinguishes paragraphs from bullet lists.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// Block is a paragraph or a bullet list inside a section body.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`
}

// Section is one rendered report section.
type Section struct {
	Kind   assessment.Kind `json:"kind"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Blocks []Block         `json:"blocks,omitempty"`
}

// Report is the renderable patient report.
type Report struct {
	Title      string    `json:"title"`
	Header     Header    `json:"header"`
	Sections   []Section `json:"sections"`
	Emergency  bool      `json:"emergency"`
	Disclaimer string    `json:"disclaimer"`
	Language   string    `json:"language,omitempty"`
}

// Assembler builds reports. Now and NewID are replaceable for tests.
type Assembler struct {
	Now   func() time.Time
	NewID func() string
}

// NewAssembler returns an Assembler using the wall clock and random ids.
func NewAssembler() *Assembler {
	return &Assembler{Now: time.Now, NewID: NewReportID}
}

// NewReportID returns a random identifier of the form AR-XXXXXXXX.
func NewReportID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "AR-" + strings.ToUpper(hex[:8])
}

// Assemble combines parsed sections and patient details into a report. Every
// call draws a fresh report id and timestamp; everything else depends only on
// the inputs.
func (a *Assembler) Assemble(sections []assessment.Section, p intake.Patient, emergency bool, language string) *Report {
	r := &Report{
		Title: Title,
		Header: Header{
			Name:        orDefault(p.Name, AnonymousName),
			Age:         orDefault(p.Age, NotProvided),
			Gender:      orDefault(p.Gender, NotProvided),
			Location:    p.Location,
			ReportID:    a.NewID(),
			GeneratedAt: a.Now(),
		},
		Emergency:  emergency,
		Disclaimer: Disclaimer,
		Language:   language,
	}

	for _, k := range Order {
		s, ok := assessment.Find(sections, k)
		if !ok {
			continue
		}
		sec := Section{Kind: k, Title: assessment.Title(k), Body: s.Body}
		if structured[k] {
			sec.Blocks = SplitBlocks(s.Body)
		}
		r.Sections = append(r.Sections, sec)
	}
	return r
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// SplitBlocks splits body on blank lines into paragraphs. Consecutive lines
// starting with "-", "*" or "•" become a list.
func SplitBlocks(body string) []Block {
	var blocks []Block
	for _, chunk := range blankLine.Split(strings.ReplaceAll(body, "\r\n", "\n"), -1) {
		var para []string
		var items []string
		flushPara := func() {
			if len(para) > 0 {
				blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, "\n")})
				para = nil
			}
		}
		flushList := func() {
			if len(items) > 0 {
				blocks = append(blocks, Block{Kind: BlockList, Items: items})
				items = nil
			}
		}

		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if item, ok := bulletItem(line); ok {
				flushPara()
				items = append(items, item)
				continue
			}
			flushList()
			para = append(para, line)
		}
		flushPara()
		flushList()
	}
	return blocks
}

func bulletItem(line string) (string, bool) {
	for _, b := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, b) {
			return strings.TrimSpace(line[len(b):]), true
		}
	}
	return "", false
}
