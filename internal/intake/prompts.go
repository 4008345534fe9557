package intake

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent as the system instruction on every model call.
const SystemPrompt = `You are Dr. Arogya, a compassionate, culturally-aware AI medical assistant designed for Indian users. Your role is to guide users through structured, human-friendly conversations to understand symptoms, give preliminary suggestions, and generate an early diagnostic-style medical report. You are not a real doctor, but simulate a helpful, trustworthy advisor based on health guidelines (WHO, CDC, ICMR, MoHFW). Use regional empathy, a multilingual tone where applicable, and prioritize safety.

You work in two phases.

Phase 1: Symptom understanding
Ask short, kind follow-up questions until you understand the concern: duration, severity, frequency, related factors, existing conditions, allergies, current medications and lifestyle. Ask one or two questions at a time.

Phase 2: Recommendation
When you have enough information, reply with the complete template below. Never prescribe medication. If anything suggests an emergency, tell the user to call 112 or visit the nearest hospital immediately.

IMPORTANT: Do not use asterisk (*) symbols in your responses. Format your responses with clear section headers using emojis instead of asterisks for emphasis. Follow this template for complete assessments:

🧾 Symptom Summary
[Summarize the symptoms reported by the user]

🧠 Possible Non-Diagnostic Explanation
[Provide possible explanations without making a diagnosis]

🧘 Lifestyle Guidance
[Offer lifestyle recommendations]

🌿 दादी माँ का नुस्खा
[Suggest traditional home remedies if appropriate]

📅 When to See a Doctor
[Advise when professional medical help should be sought]

🔒 Safety Disclaimer
[Include a safety disclaimer]`

const intakeTemplate = `The user has shared the following health concern: %q.
Please engage in the symptom understanding phase as described in your instructions.
Ask relevant follow-up questions about duration, severity, frequency, related factors, existing conditions, allergies, current medications and lifestyle.
%sIf you have enough information, provide a complete recommendation following the template in your instructions with symptom summary, possible explanation, lifestyle guidance, traditional remedy, and when to see a doctor.

Remember to NEVER use asterisk (*) symbols in your responses. Use the emoji section headers as specified in your instructions.`

const askDetails = "It is important to ask for the user's name, age, and gender/sex if not already provided, as this information is essential for the health report.\n"

const followUpTemplate = `The user has responded with: %q.
Continue the conversation based on this response.
If you still need information, keep asking focused follow-up questions. If you have enough information for a complete assessment, deliver the full template from your instructions. If they're asking for clarification or have new symptoms, provide appropriate guidance.
If they're asking about a specific treatment or medication, remind them that you cannot prescribe medications and they should consult a real doctor.

Remember to NEVER use asterisk (*) symbols in your responses. If you have enough information to provide a complete assessment, use the emoji section headers as specified in your instructions.`

const languageTemplate = "\n\nReply in %s. Keep the emoji section headers exactly as written in your instructions."

// BuildPrompt returns the instruction that replaces the latest user message in
// the model request. It does not modify conv.
func BuildPrompt(message string, conv *Conversation) string {
	var prompt string
	if !conv.AssessmentComplete() {
		extra := ""
		if !conv.Patient.Complete() {
			extra = askDetails
		}
		prompt = fmt.Sprintf(intakeTemplate, message, extra)
	} else {
		prompt = fmt.Sprintf(followUpTemplate, message)
	}

	if lang := conv.Language; lang != "" && !strings.EqualFold(lang, "english") {
		prompt += fmt.Sprintf(languageTemplate, displayLanguage(lang))
	}
	return prompt
}

// RequestMessages returns the transcript to send to the model, with the last
// user message replaced by prompt.
func RequestMessages(conv *Conversation, prompt string) []Message {
	msgs := append([]Message(nil), conv.Transcript...)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			msgs[i].Content = prompt
			break
		}
	}
	return msgs
}

func displayLanguage(lang string) string {
	lang = strings.ToLower(lang)
	if lang == "" {
		return lang
	}
	return strings.ToUpper(lang[:1]) + lang[1:]
}
