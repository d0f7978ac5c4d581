package cnab

// EventKind is what a return occurrence means for an instrument.
type EventKind string

const (
	EventEntryConfirmed EventKind = "ENTRY_CONFIRMED"
	EventEntryRejected  EventKind = "ENTRY_REJECTED"
	EventSettled        EventKind = "SETTLED"
	EventWrittenOff     EventKind = "WRITTEN_OFF"
	EventProtested      EventKind = "PROTESTED"
)

// occurrences is the closed table of codes the bank reports in columns
// 111-112 of a return detail.
var occurrences = map[string]EventKind{
	"02": EventEntryConfirmed,
	"03": EventEntryRejected,
	"06": EventSettled, // normal settlement
	"07": EventSettled, // partial settlement
	"08": EventSettled, // settlement at a notary office
	"09": EventWrittenOff,
	"10": EventWrittenOff, // written off on the beneficiary's instruction
	"23": EventProtested,
}

// LookupOccurrence maps an occurrence code to its kind.
func LookupOccurrence(code string) (EventKind, bool) {
	k, ok := occurrences[code]
	return k, ok
}

// OccurrenceCode returns the canonical code for kind, the first in the table.
func OccurrenceCode(kind EventKind) string {
	switch kind {
	case EventEntryConfirmed:
		return "02"
	case EventEntryRejected:
		return "03"
	case EventSettled:
		return "06"
	case EventWrittenOff:
		return "09"
	case EventProtested:
		return "23"
	}
	return ""
}
