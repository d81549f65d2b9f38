package dialog

import (
	"strings"

	"adherence-agent/internal/domain"
	"adherence-agent/internal/normalize"
	"adherence-agent/internal/recap"
)

func (t *turn) step() TurnResult {
	state := t.cc.State
	if state == domain.StateEnded {
		return TurnResult{Context: t.cc, Prompt: recap.Prompt{Key: recap.KeyGoodbye}, ShouldEndSession: true, Outcome: OutcomeOK}
	}
	if state == domain.StateConfirmed {
		t.moveTo(domain.StateAwaitingEducationOffer)
		state = t.cc.State
	}

	switch t.intent {
	case IntentStop, IntentCancel:
		return t.end(domain.EndStopped, recap.Prompt{Key: recap.KeyGoodbye}, OutcomeOK)
	case IntentHelp:
		if state != domain.StateGreeted {
			return t.respond(t.question(), OutcomeOK)
		}
	case IntentLaunch:
		if state != domain.StateGreeted && state != domain.StateAwaitingIdentifier {
			return t.respond(t.question(), OutcomeOK)
		}
	}

	if state == domain.StateAwaitingIdentifier {
		return t.awaitingIdentifier()
	}
	if state == domain.StateGreeted {
		return t.greeted()
	}
	if t.uninterpretable() {
		p := t.question()
		p.Lead = recap.KeyFallback
		return t.fallback(p)
	}

	switch state {
	case domain.StateAwaitingMedicationSelection:
		return t.awaitingSelection()
	case domain.StateAwaitingMedicationConfirmation:
		return t.awaitingConfirmation()
	case domain.StateAwaitingMedicationChange:
		return t.awaitingChange()
	case domain.StateAwaitingMedicationDetail:
		return t.awaitingDetail()
	case domain.StateAwaitingEducationOffer:
		return t.awaitingEducationOffer()
	case domain.StateAwaitingEducationTopic:
		return t.awaitingEducationTopic()
	}

	t.m.logger.Error("conversation context has unknown state",
		"sessionId", t.cc.SessionID, "state", string(state), "reason", "invalid_context")
	return t.end(domain.EndInvalidContext, recap.Prompt{Key: recap.KeyRetryExhausted}, OutcomeRetryExhausted)
}

// question is the prompt that asks for the current state's answer.
func (t *turn) question() recap.Prompt {
	switch t.cc.State {
	case domain.StateGreeted:
		return recap.Prompt{Key: recap.KeyGreeting}
	case domain.StateAwaitingMedicationSelection:
		return recap.Prompt{Key: recap.KeyAskMedication, Medications: t.cc.Medications}
	case domain.StateAwaitingMedicationConfirmation:
		med, _ := t.cc.Medication(t.cc.PendingMedicationID)
		return recap.Prompt{Key: recap.KeyRecap, Medication: med}
	case domain.StateAwaitingMedicationChange:
		med, _ := t.cc.MedicationUnderReview()
		return recap.Prompt{Key: recap.KeyAskChange, Medication: med}
	case domain.StateAwaitingMedicationDetail:
		med, _ := t.cc.Medication(t.cc.PendingMedicationID)
		return recap.Prompt{Key: recap.KeyAskDetail, Medication: med}
	case domain.StateAwaitingEducationOffer:
		return recap.Prompt{Key: recap.KeyEducationQuestion}
	case domain.StateAwaitingEducationTopic:
		return recap.Prompt{Key: recap.KeyEducationTopics}
	}
	return recap.Prompt{Key: recap.KeyAskIdentifier}
}

func (t *turn) awaitingIdentifier() TurnResult {
	switch t.intent {
	case IntentLaunch:
		return t.respond(recap.Prompt{Key: recap.KeyWelcome}, OutcomeOK)
	case IntentProvideIdentifier, IntentAnswer:
	default:
		return t.fallback(recap.Prompt{Key: recap.KeyAskIdentifier})
	}

	code := t.m.normalizer.Normalize(t.slot(SlotIdentifier, SlotAnswer), normalize.CategoryIdentifier)
	res := t.m.resolver.Resolve(t.ctx, string(code))
	switch {
	case res.Found:
		t.cc.PatientID = res.PatientID
		t.moveTo(domain.StateGreeted)
		return t.respond(recap.Prompt{Key: recap.KeyGreeting}, OutcomeOK)
	case res.Unavailable:
		return t.end(domain.EndUpstreamUnavailable, recap.Prompt{Key: recap.KeyUpstreamUnavailable}, OutcomeUpstreamUnavailable)
	}
	return t.retry(recap.Prompt{Key: recap.KeyPatientNotFound}, OutcomeIdentityNotFound)
}

func (t *turn) greeted() TurnResult {
	switch t.intent {
	case IntentTookMedication, IntentSelectMedication, IntentYes, IntentHelp, IntentLaunch, IntentSilence:
		return t.beginSelection()
	}
	p := t.question()
	p.Lead = recap.KeyFallback
	return t.fallback(p)
}

// beginSelection loads the patient's medications once and either asks which
// one was taken or, with a single medication, goes straight to the recap.
func (t *turn) beginSelection() TurnResult {
	if t.cc.Medications == nil {
		ctx, cancel := t.callContext()
		meds, err := t.m.meds.ListMedications(ctx, t.cc.PatientID)
		cancel()
		if err != nil {
			t.m.logger.Error("medication lookup unavailable",
				"sessionId", t.cc.SessionID, "patientId", t.cc.PatientID, "reason", "directory_error", "err", err)
			return t.end(domain.EndUpstreamUnavailable, recap.Prompt{Key: recap.KeyUpstreamUnavailable}, OutcomeUpstreamUnavailable)
		}
		t.cc.Medications = append([]domain.Medication{}, meds...)
	}

	switch len(t.cc.Medications) {
	case 0:
		t.moveTo(domain.StateAwaitingEducationOffer)
		return t.respond(recap.Prompt{Key: recap.KeyNoMedications}, OutcomeOK)
	case 1:
		t.moveTo(domain.StateAwaitingMedicationSelection)
		return t.selectMedication(t.cc.Medications[0])
	}

	t.moveTo(domain.StateAwaitingMedicationSelection)
	if med, ok := t.matchMedication(t.slot(SlotMedication)); ok {
		return t.selectMedication(med)
	}
	return t.respond(t.question(), OutcomeOK)
}

func (t *turn) awaitingSelection() TurnResult {
	switch t.intent {
	case IntentSelectMedication, IntentTookMedication, IntentAnswer:
		if med, ok := t.matchMedication(t.slot(SlotMedication, SlotAnswer)); ok {
			return t.selectMedication(med)
		}
	}
	return t.retry(recap.Prompt{Key: recap.KeyMedicationUnknown, Medications: t.cc.Medications}, OutcomeUserInputUnrecognized)
}

func (t *turn) selectMedication(med domain.Medication) TurnResult {
	t.moveTo(domain.StateAwaitingMedicationConfirmation)
	t.cc.PendingMedicationID = med.ID
	return t.respond(recap.Prompt{Key: recap.KeyRecap, Medication: med}, OutcomeOK)
}

// matchMedication finds a medication by exact name, by "name dose", by a
// unique partial name or by its position in the list.
func (t *turn) matchMedication(raw string) (domain.Medication, bool) {
	want := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if want == "" {
		return domain.Medication{}, false
	}
	for _, m := range t.cc.Medications {
		name := strings.ToLower(m.Name)
		if want == name || want == strings.ToLower(m.Name+" "+m.Dose) {
			return m, true
		}
	}

	var partial []domain.Medication
	for _, m := range t.cc.Medications {
		name := strings.ToLower(m.Name)
		if len(want) >= 3 && (strings.Contains(name, want) || strings.Contains(want, name)) {
			partial = append(partial, m)
		}
	}
	if len(partial) == 1 {
		return partial[0], true
	}

	switch t.m.normalizer.Normalize(raw, normalize.CategoryOrdinal) {
	case "1":
		return t.medicationAt(0)
	case "2":
		return t.medicationAt(1)
	case "3":
		return t.medicationAt(2)
	case "4":
		return t.medicationAt(3)
	case "5":
		return t.medicationAt(4)
	}
	return domain.Medication{}, false
}

func (t *turn) medicationAt(i int) (domain.Medication, bool) {
	if i < 0 || i >= len(t.cc.Medications) {
		return domain.Medication{}, false
	}
	return t.cc.Medications[i], true
}

func (t *turn) awaitingConfirmation() TurnResult {
	med, ok := t.cc.Medication(t.cc.PendingMedicationID)
	if !ok {
		t.cc.PendingMedicationID = ""
		t.moveTo(domain.StateAwaitingMedicationSelection)
		return t.respond(t.question(), OutcomeUserInputUnrecognized)
	}

	tok, _ := t.yesNo()
	switch tok {
	case normalize.Yes:
		t.record(domain.AnswerConfirmed, med.ID, domain.AnswerYes)
		t.stamp(med.ID)
		return t.confirm()
	case normalize.No:
		t.record(domain.AnswerConfirmed, med.ID, domain.AnswerNo)
		t.cc.PendingMedicationID = ""
		t.moveTo(domain.StateAwaitingMedicationChange)
		return t.respond(recap.Prompt{Key: recap.KeyAskChange, Medication: med}, OutcomeOK)
	}
	return t.retry(recap.Prompt{Key: recap.KeyRecap, Medication: med}, OutcomeUserInputUnrecognized)
}

func (t *turn) awaitingChange() TurnResult {
	med, ok := t.cc.MedicationUnderReview()
	if !ok {
		return t.confirm()
	}

	tok, _ := t.yesNo()
	switch tok {
	case normalize.Yes:
		t.record(domain.AnswerChanged, med.ID, domain.AnswerYes)
		t.moveTo(domain.StateAwaitingMedicationDetail)
		t.cc.PendingMedicationID = med.ID
		return t.respond(recap.Prompt{Key: recap.KeyAskDetail, Medication: med}, OutcomeOK)
	case normalize.No:
		t.record(domain.AnswerChanged, med.ID, domain.AnswerNo)
		t.stamp(med.ID)
		return t.confirm()
	}
	return t.retry(recap.Prompt{Key: recap.KeyAskChange, Lead: recap.KeyYesOrNo, Medication: med}, OutcomeUserInputUnrecognized)
}

func (t *turn) awaitingDetail() TurnResult {
	med, ok := t.cc.Medication(t.cc.PendingMedicationID)
	if !ok {
		return t.confirm()
	}

	switch t.intent {
	case IntentDescribeChange, IntentAnswer, IntentTookMedication, IntentSelectMedication:
		if detail := t.slot(SlotDetail, SlotAnswer, SlotMedication); detail != "" {
			t.record(domain.AnswerDetail, med.ID, detail)
			t.stamp(med.ID)
			return t.confirm()
		}
	}
	return t.retry(recap.Prompt{Key: recap.KeyAskDetail, Medication: med}, OutcomeUserInputUnrecognized)
}

// confirm passes through StateConfirmed, which advances on its own to the
// education offer.
func (t *turn) confirm() TurnResult {
	t.cc.PendingMedicationID = ""
	t.moveTo(domain.StateConfirmed)
	t.moveTo(domain.StateAwaitingEducationOffer)
	return t.respond(recap.Prompt{Key: recap.KeyEducationOffer}, OutcomeOK)
}

func (t *turn) awaitingEducationOffer() TurnResult {
	switch t.intent {
	case IntentLeaveNow:
		return t.end(domain.EndLeft, recap.Prompt{Key: recap.KeyGoodbye}, OutcomeOK)
	case IntentChooseTopic:
		if res, ok := t.chooseTopic(); ok {
			return res
		}
	}

	tok, _ := t.yesNo()
	switch tok {
	case normalize.Yes:
		t.moveTo(domain.StateAwaitingEducationTopic)
		return t.respond(recap.Prompt{Key: recap.KeyEducationTopics}, OutcomeOK)
	case normalize.No:
		return t.end(domain.EndDeclined, recap.Prompt{Key: recap.KeyGoodbye}, OutcomeOK)
	}
	return t.retry(recap.Prompt{Key: recap.KeyEducationQuestion, Lead: recap.KeyYesOrNo}, OutcomeUserInputUnrecognized)
}

func (t *turn) awaitingEducationTopic() TurnResult {
	if res, ok := t.chooseTopic(); ok {
		return res
	}
	return t.retry(recap.Prompt{Key: recap.KeyTopicReprompt}, OutcomeUserInputUnrecognized)
}

// chooseTopic delivers the requested topic or leaves. ok is false when the
// input names no topic.
func (t *turn) chooseTopic() (TurnResult, bool) {
	var tok normalize.Token
	switch t.intent {
	case IntentLeaveNow, IntentNo:
		tok = normalize.LeaveNow
	case IntentChooseTopic, IntentAnswer:
		tok = t.m.normalizer.Normalize(t.slot(SlotTopic, SlotAnswer), normalize.CategoryEducationTopic)
	}

	switch tok {
	case normalize.Diet, normalize.Exercise, normalize.Tips:
		t.cc.EducationTopic = string(tok)
		return t.end(domain.EndCompleted, recap.Prompt{Key: recap.KeyEducationContent, Topic: string(tok)}, OutcomeOK), true
	case normalize.LeaveNow:
		return t.end(domain.EndLeft, recap.Prompt{Key: recap.KeyGoodbye}, OutcomeOK), true
	}
	return TurnResult{}, false
}
