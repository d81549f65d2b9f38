package dialog

import "strings"

// Intent names the dialog understands. Platform names such as
// "AMAZON.YesIntent" are accepted and mapped to these.
const (
	IntentSilence           = ""
	IntentLaunch            = "Launch"
	IntentProvideIdentifier = "ProvideIdentifier"
	IntentTookMedication    = "TookMedication"
	IntentSelectMedication  = "SelectMedication"
	IntentYes               = "Yes"
	IntentNo                = "No"
	IntentAnswer            = "Answer"
	IntentChooseTopic       = "ChooseTopic"
	IntentLeaveNow          = "LeaveNow"
	IntentDescribeChange    = "DescribeChange"
	IntentHelp              = "Help"
	IntentStop              = "Stop"
	IntentCancel            = "Cancel"
	IntentFallback          = "Fallback"
)

// Slot names.
const (
	SlotIdentifier = "identifier"
	SlotMedication = "medication"
	SlotAnswer     = "answer"
	SlotTopic      = "topic"
	SlotDetail     = "detail"
)

// answerIntents carry an answer to some question. Receiving one the
// current state does not accept is a wrong answer, not an unparseable one.
var answerIntents = map[string]bool{
	IntentProvideIdentifier: true,
	IntentTookMedication:    true,
	IntentSelectMedication:  true,
	IntentYes:               true,
	IntentNo:                true,
	IntentAnswer:            true,
	IntentChooseTopic:       true,
	IntentLeaveNow:          true,
	IntentDescribeChange:    true,
}

var knownIntents = intentIndex()

func intentIndex() map[string]string {
	idx := map[string]string{"launchrequest": IntentLaunch}
	for _, name := range []string{
		IntentLaunch, IntentProvideIdentifier, IntentTookMedication, IntentSelectMedication,
		IntentYes, IntentNo, IntentAnswer, IntentChooseTopic, IntentLeaveNow,
		IntentDescribeChange, IntentHelp, IntentStop, IntentCancel, IntentFallback,
	} {
		idx[strings.ToLower(name)] = name
	}
	return idx
}

// canonicalIntent maps a platform intent name onto the dialog's names.
// Unknown names are returned unchanged.
func canonicalIntent(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return IntentSilence
	}
	key := strings.ToLower(name)
	key = strings.TrimPrefix(key, "amazon.")
	if canonical, ok := knownIntents[key]; ok {
		return canonical
	}
	if canonical, ok := knownIntents[strings.TrimSuffix(key, "intent")]; ok {
		return canonical
	}
	return name
}
