package intake

import (
	"strings"
	"testing"
)

const completeReply = `🧾 Symptom Summary
Fever and sore throat for two days.

🧠 Possible Non-Diagnostic Explanation
This may be a **viral** throat infection.

🧘 Lifestyle Guidance
* Rest
* Warm fluids`

func TestObserveReply_RecollectsPatient(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("My name is Priya Singh, I'm 29, female. I have a sore throat")
	if c.Patient.Name != "Priya Singh" {
		t.Fatalf("expected name extracted, got %+v", c.Patient)
	}

	out := c.ObserveReply(completeReply)
	if !out.Assessment {
		t.Fatal("expected complete assessment")
	}
	if c.Phase != PhaseInfoCollection {
		t.Errorf("expected info collection, got %s", c.Phase)
	}
	if c.Patient != (Patient{}) {
		t.Errorf("expected patient reset, got %+v", c.Patient)
	}
	if !out.NeedsInfo || len(out.Missing) != 4 {
		t.Errorf("expected request for four fields, got %v", out.Missing)
	}
	if strings.Contains(out.Content, "*") {
		t.Errorf("stored reply still has emphasis: %q", out.Content)
	}
	if got := c.Transcript[len(c.Transcript)-1].Content; got != out.Content {
		t.Errorf("transcript holds %q, want cleaned reply", got)
	}
}

func TestObserveReply_NoRecollect(t *testing.T) {
	c := NewConversation("english", Policy{RecollectPatient: false})
	c.ObserveUser("My name is Priya Singh, I'm 29, female")

	out := c.ObserveReply(completeReply)
	if c.Phase != PhaseReportReady {
		t.Fatalf("expected report ready, got %s", c.Phase)
	}
	if out.ReportSource == "" || out.NeedsInfo {
		t.Errorf("unexpected outcome %+v", out)
	}
	if !c.ReportGenerated() || !c.AssessmentComplete() {
		t.Error("report generated must imply assessment complete")
	}
}

func TestObserveReply_IncompleteStaysInIntake(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("I have a cough")
	out := c.ObserveReply("🧾 Symptom Summary\nCough.\n\n🧘 Lifestyle Guidance\nRest.")

	if out.Assessment {
		t.Error("two required sections must not count as an assessment")
	}
	if c.Phase != PhaseIntake {
		t.Errorf("expected intake, got %s", c.Phase)
	}
}

func TestObserveUser_CompletesReport(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("I have a sore throat")
	c.ObserveReply(completeReply)

	out := c.ObserveUser("Priya")
	if !out.Reprompt {
		t.Fatal("expected a local re-prompt for a short incomplete answer")
	}
	if want := []string{"age", "gender/sex"}; strings.Join(out.Missing, ",") != strings.Join(want, ",") {
		t.Errorf("missing = %v, want %v", out.Missing, want)
	}
	if c.Phase != PhaseInfoCollection {
		t.Errorf("re-prompt must not change phase, got %s", c.Phase)
	}

	out = c.ObserveUser("I'm 29, female")
	if c.Phase != PhaseReportReady {
		t.Fatalf("expected report ready, got %s", c.Phase)
	}
	if !strings.Contains(out.ReportSource, "Symptom Summary") {
		t.Errorf("expected report source to be the assessment, got %q", out.ReportSource)
	}
	if out.Reprompt {
		t.Error("no re-prompt expected once details are complete")
	}
}

func TestObserveReply_TemplateAfterReportKeepsPatient(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("I have a sore throat")
	c.ObserveReply(completeReply)
	c.ObserveUser("My name is Priya Singh, I'm 29, female")
	if c.Phase != PhaseReportReady {
		t.Fatalf("expected report ready, got %s", c.Phase)
	}
	known := c.Patient

	repeat := strings.Replace(completeReply, "two days", "three days", 1)
	out := c.ObserveReply(repeat)
	if c.Phase != PhaseReportReady {
		t.Errorf("repeated template must not leave report ready, got %s", c.Phase)
	}
	if c.Patient != known {
		t.Errorf("patient details lost: %+v", c.Patient)
	}
	if out.Assessment || out.NeedsInfo {
		t.Errorf("unexpected outcome %+v", out)
	}
	if !strings.Contains(out.ReportSource, "three days") {
		t.Errorf("expected refreshed report source, got %q", out.ReportSource)
	}
}

func TestObserveReply_TemplateDuringInfoCollection(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("I have a sore throat")
	c.ObserveReply(completeReply)
	c.ObserveUser("Priya")

	out := c.ObserveReply(completeReply)
	if c.Phase != PhaseInfoCollection {
		t.Errorf("expected info collection, got %s", c.Phase)
	}
	if c.Patient.Name != "Priya" {
		t.Errorf("collected name must survive, got %+v", c.Patient)
	}
	if out.Assessment || out.ReportSource != "" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestObserveUser_LongMessageGoesToModel(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("I have a sore throat")
	c.ObserveReply(completeReply)

	out := c.ObserveUser("Before I answer, can you tell me whether I should avoid cold drinks?")
	if out.Reprompt {
		t.Error("long messages should reach the model")
	}
}

func TestObserveUser_EmergencyIsMonotonic(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	out := c.ObserveUser("I have chest pain")
	if !out.Emergency || out.Keyword != "chest pain" {
		t.Errorf("unexpected outcome %+v", out)
	}

	out = c.ObserveUser("it is better now")
	if out.Emergency {
		t.Error("second message should not report a new emergency")
	}
	if !c.Emergency {
		t.Error("emergency flag must stay set")
	}
}

func TestSetLanguage(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.Say("Hi, I'm Dr. Arogya")
	c.ObserveUser("I'm Ravi, 40 years old, with fever")
	if c.Patient.Age == "" {
		t.Fatalf("expected age extracted, got %+v", c.Patient)
	}

	if !c.SetLanguage("hindi", "नमस्ते") {
		t.Fatal("expected reset for a short conversation")
	}
	if len(c.Transcript) != 1 || c.Transcript[0].Content != "नमस्ते" {
		t.Errorf("unexpected transcript %+v", c.Transcript)
	}
	if c.Patient != (Patient{}) {
		t.Errorf("expected patient reset with the transcript, got %+v", c.Patient)
	}

	c.ObserveUser("बुखार")
	c.Say("कितने दिनों से?")
	if c.SetLanguage("marathi", "नमस्कार") {
		t.Error("expected no reset once the conversation is under way")
	}
	if c.Language != "marathi" || len(c.Transcript) != 3 {
		t.Errorf("unexpected state: %s, %d entries", c.Language, len(c.Transcript))
	}
}

func TestLatestAssessment(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	if _, ok := c.LatestAssessment(); ok {
		t.Error("empty conversation has no assessment")
	}

	c.Say("🧾 Symptom Summary\nold")
	c.ObserveUser("more")
	c.Say("🧠 Possible Non-Diagnostic Explanation\nnew")
	c.Say("Could you share your age?")

	got, ok := c.LatestAssessment()
	if !ok || !strings.Contains(got, "new") {
		t.Errorf("LatestAssessment = %q, %v", got, ok)
	}
}

func TestClone(t *testing.T) {
	c := NewConversation("english", DefaultPolicy())
	c.ObserveUser("hello")
	cp := c.Clone()
	cp.Transcript[0].Content = "changed"
	if c.Transcript[0].Content != "hello" {
		t.Error("clone shares transcript storage")
	}
}
