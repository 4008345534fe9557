package intake

import (
	"unicode/utf8"

	"github.com/MikeSquared-Agency/arogya/internal/assessment"
)

// Phase is the stage of an intake conversation.
type Phase string

const (
	// PhaseIntake is the initial phase, before any complete assessment.
	PhaseIntake Phase = "intake"
	// PhaseAssessmentComplete is entered when a reply carries every required section.
	PhaseAssessmentComplete Phase = "assessment_complete"
	// PhaseInfoCollection waits for name, age and gender before a report.
	PhaseInfoCollection Phase = "info_collection"
	// PhaseReportReady means a report can be assembled from the latest assessment.
	PhaseReportReady Phase = "report_ready"
)

// Role is the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ShortReplyLimit is the length under which a message sent while details are
// still missing is answered with a local re-prompt instead of a model call.
const ShortReplyLimit = 50

// Policy tunes the state machine.
type Policy struct {
	// RecollectPatient clears all patient fields whenever an assessment
	// completes so they are asked for again.
	RecollectPatient bool `json:"recollect_patient"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{RecollectPatient: true}
}

// Conversation is the full state of one intake session. All mutation goes
// through its Observe and SetLanguage methods.
type Conversation struct {
	Transcript []Message `json:"transcript"`
	Language   string    `json:"language"`
	Patient    Patient   `json:"patient"`
	Phase      Phase     `json:"phase"`
	// Emergency never reverts to false once set.
	Emergency bool   `json:"emergency"`
	Policy    Policy `json:"policy"`
}

// NewConversation returns a conversation in the intake phase.
func NewConversation(language string, policy Policy) *Conversation {
	return &Conversation{
		Language: language,
		Phase:    PhaseIntake,
		Policy:   policy,
	}
}

// AssessmentComplete reports whether a complete assessment has been received.
func (c *Conversation) AssessmentComplete() bool {
	return c.Phase != PhaseIntake
}

// ReportGenerated reports whether the conversation has reached ReportReady.
// It implies AssessmentComplete.
func (c *Conversation) ReportGenerated() bool {
	return c.Phase == PhaseReportReady
}

// UserOutcome describes what observing a user message changed.
type UserOutcome struct {
	// Emergency is set when this message matched an emergency keyword.
	Emergency bool
	Keyword   string
	// ReportSource is the assistant message a report should be assembled
	// from. It is set only on the transition into ReportReady.
	ReportSource string
	// Reprompt asks the caller to answer locally with an info request for
	// Missing and skip the model call.
	Reprompt bool
	Missing  []string
}

// ObserveUser records a user message, runs emergency detection and field
// extraction, and advances to ReportReady once the patient details are known.
func (c *Conversation) ObserveUser(message string) UserOutcome {
	var out UserOutcome
	c.Transcript = append(c.Transcript, Message{Role: RoleUser, Content: message})

	if kw, ok := MatchEmergency(message); ok {
		c.Emergency = true
		out.Emergency = true
		out.Keyword = kw
	}

	c.Patient = Extract(message, c.Patient, c.Phase == PhaseInfoCollection)

	if !c.AssessmentComplete() || c.ReportGenerated() {
		return out
	}

	if c.Patient.Complete() {
		if src, ok := c.LatestAssessment(); ok {
			c.Phase = PhaseReportReady
			out.ReportSource = src
		}
		return out
	}

	if c.Phase == PhaseInfoCollection && utf8.RuneCountInString(message) < ShortReplyLimit {
		out.Reprompt = true
		out.Missing = c.Patient.Missing()
	}
	return out
}

// ReplyOutcome describes what observing a model reply changed.
type ReplyOutcome struct {
	// Content is the reply as stored, with emphasis removed.
	Content  string
	Sections []assessment.Section
	// Assessment is set when the reply completed the intake phase.
	Assessment bool
	// NeedsInfo asks the caller to request the fields in Missing.
	NeedsInfo    bool
	Missing      []string
	ReportSource string
}

// ObserveReply records a model reply. A reply carrying every required section
// completes the assessment only from the intake phase. In later phases it
// replaces the report source and keeps the patient details already collected.
func (c *Conversation) ObserveReply(reply string) ReplyOutcome {
	cleaned := assessment.Clean(reply)
	c.Transcript = append(c.Transcript, Message{Role: RoleAssistant, Content: cleaned})

	out := ReplyOutcome{Content: cleaned, Sections: assessment.Parse(cleaned)}
	if !assessment.Complete(out.Sections) {
		return out
	}

	if c.Phase != PhaseIntake {
		if c.Patient.Complete() {
			c.Phase = PhaseReportReady
			out.ReportSource = cleaned
		}
		return out
	}

	out.Assessment = true
	c.Phase = PhaseAssessmentComplete

	switch {
	case c.Policy.RecollectPatient:
		c.Patient = Patient{}
		c.Phase = PhaseInfoCollection
		out.NeedsInfo = true
		out.Missing = append(c.Patient.Missing(), "location")
	case c.Patient.Complete():
		c.Phase = PhaseReportReady
		out.ReportSource = cleaned
	default:
		c.Phase = PhaseInfoCollection
		out.NeedsInfo = true
		out.Missing = c.Patient.Missing()
	}
	return out
}

// Say appends an assistant message that is not a model reply, such as a
// greeting or a locally generated re-prompt.
func (c *Conversation) Say(text string) {
	c.Transcript = append(c.Transcript, Message{Role: RoleAssistant, Content: text})
}

// SetLanguage switches the session language. A conversation with at most two
// entries is restarted from the translated greeting with no patient details;
// it reports whether that happened.
func (c *Conversation) SetLanguage(language, greeting string) bool {
	c.Language = language
	if len(c.Transcript) > 2 {
		return false
	}
	c.Transcript = []Message{{Role: RoleAssistant, Content: greeting}}
	c.Patient = Patient{}
	c.Phase = PhaseIntake
	return true
}

// LatestAssessment returns the most recent assistant message carrying a
// Symptom Summary or Possible Explanation marker.
func (c *Conversation) LatestAssessment() (string, bool) {
	for i := len(c.Transcript) - 1; i >= 0; i-- {
		m := c.Transcript[i]
		if m.Role == RoleAssistant && assessment.Qualifies(m.Content) {
			return m.Content, true
		}
	}
	return "", false
}

// Clone returns a copy that shares no transcript storage with c.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Transcript = append([]Message(nil), c.Transcript...)
	return &cp
}
