// Package recap renders prompt keys into the sentences spoken to the caller.
package recap

import (
	"fmt"
	"strings"

	"adherence-agent/internal/domain"
)

// Key identifies a prompt template.
type Key string

const (
	KeyWelcome             Key = "welcome"
	KeyAskIdentifier       Key = "ask_identifier"
	KeyPatientNotFound     Key = "patient_not_found"
	KeyGreeting            Key = "greeting"
	KeyAskMedication       Key = "ask_medication"
	KeyMedicationUnknown   Key = "medication_unknown"
	KeyRecap               Key = "recap"
	KeyAskChange           Key = "ask_change"
	KeyAskDetail           Key = "ask_detail"
	KeyEducationOffer      Key = "education_offer"
	KeyEducationQuestion   Key = "education_question"
	KeyNoMedications       Key = "no_medications"
	KeyEducationTopics     Key = "education_topics"
	KeyTopicReprompt       Key = "topic_reprompt"
	KeyEducationContent    Key = "education_content"
	KeyYesOrNo             Key = "yes_or_no"
	KeyFallback            Key = "fallback"
	KeyGoodbye             Key = "goodbye"
	KeyRetryExhausted      Key = "retry_exhausted"
	KeyUpstreamUnavailable Key = "upstream_unavailable"
)

// Prompt is a key plus the values its template needs. Lead, when set, is
// rendered first as a short preamble (e.g. a fallback apology).
type Prompt struct {
	Key         Key
	Lead        Key
	Medication  domain.Medication
	Medications []domain.Medication
	Topic       string
}

var fixed = map[Key]string{
	KeyWelcome:             "Welcome to your medication check-in. Please tell me your identifier.",
	KeyAskIdentifier:       "Please tell me your identifier.",
	KeyPatientNotFound:     "could not find an active patient",
	KeyGreeting:            "Thank you, I found your record. When you have taken your medication, say I took my medication.",
	KeyEducationQuestion:   educationQuestion,
	KeyEducationTopics:     "Would you like to hear about one, diet, two, exercise, or three, medication tips? You can also say leave now.",
	KeyTopicReprompt:       "say one, two, three, or leave now",
	KeyYesOrNo:             "Please answer yes or no.",
	KeyFallback:            "I didn't understand, let's try again.",
	KeyGoodbye:             "Thank you for checking in. Goodbye.",
	KeyRetryExhausted:      "I'm sorry, I'm having trouble understanding you. Please try again later. Goodbye.",
	KeyUpstreamUnavailable: "I'm sorry, I can't reach your care records right now. Please try again later. Goodbye.",
}

const educationQuestion = "Would you like to hear a short health tip?"

// Formatter renders prompts. Education content is static text keyed by the
// canonical topic token.
type Formatter struct {
	education map[string]string
}

func NewFormatter(education map[string]string) *Formatter {
	content := make(map[string]string, len(education))
	for topic, text := range education {
		content[topic] = strings.Join(strings.Fields(text), " ")
	}
	return &Formatter{education: content}
}

// Render returns the user-facing text for p.
func (f *Formatter) Render(p Prompt) string {
	body := f.render(p)
	if p.Lead == "" {
		return body
	}
	return f.render(Prompt{Key: p.Lead}) + " " + body
}

// RecapSentence is the fixed confirmation sentence. The stored name and
// dose are used verbatim.
func RecapSentence(m domain.Medication) string {
	return fmt.Sprintf("You told me that you took your %s. Is this correct?", medicationLabel(m))
}

func (f *Formatter) render(p Prompt) string {
	if text, ok := fixed[p.Key]; ok {
		return text
	}
	switch p.Key {
	case KeyRecap:
		return RecapSentence(p.Medication)
	case KeyAskMedication:
		return "Which medication did you take? You can say " + medicationChoices(p.Medications) + "."
	case KeyMedicationUnknown:
		return "I couldn't match that to one of your medications. You can say " + medicationChoices(p.Medications) + "."
	case KeyAskChange:
		return fmt.Sprintf("Okay. Would you like to tell me what changed with your %s?", p.Medication.Name)
	case KeyAskDetail:
		return fmt.Sprintf("Please tell me what changed with your %s.", p.Medication.Name)
	case KeyEducationOffer:
		return "Thank you, I've recorded that. " + educationQuestion
	case KeyNoMedications:
		return "I don't see any active medications on file for you. " + educationQuestion
	case KeyEducationContent:
		text := f.education[p.Topic]
		if text == "" {
			return fixed[KeyGoodbye]
		}
		return text + " " + fixed[KeyGoodbye]
	}
	return fixed[KeyFallback]
}

func medicationLabel(m domain.Medication) string {
	return strings.TrimSpace(m.Name + " " + m.Dose)
}

// medicationChoices lists medications as "one, Lisinopril 10mg, or two, ...".
func medicationChoices(meds []domain.Medication) string {
	ordinals := []string{"one", "two", "three", "four", "five"}
	parts := make([]string, 0, len(meds))
	for i, m := range meds {
		if i < len(ordinals) {
			parts = append(parts, ordinals[i]+", "+medicationLabel(m))
		} else {
			parts = append(parts, medicationLabel(m))
		}
	}
	switch len(parts) {
	case 0:
		return "the name of your medication"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
	}
}
