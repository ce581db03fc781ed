package system

// PrinterState is the IPP printer-state enum.
type PrinterState int

const (
	StateIdle       PrinterState = 3
	StateProcessing PrinterState = 4
	StateStopped    PrinterState = 5
)

func (s PrinterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason is a bitset of printer-state-reasons keywords.
type Reason uint32

const ReasonNone Reason = 0

const (
	ReasonOther Reason = 1 << iota
	ReasonCoverOpen
	ReasonInputTrayMissing
	ReasonMarkerSupplyEmpty
	ReasonMarkerSupplyLow
	ReasonMediaEmpty
	ReasonMediaJam
	ReasonMediaLow
	ReasonMediaNeeded
	ReasonOffline
	ReasonSpoolAreaFull
	ReasonTonerEmpty
	ReasonTonerLow
	ReasonIdentifyPrinterRequested
	ReasonDeleting
)

var reasonKeywords = []string{
	"other",
	"cover-open",
	"input-tray-missing",
	"marker-supply-empty",
	"marker-supply-low",
	"media-empty",
	"media-jam",
	"media-low",
	"media-needed",
	"offline",
	"spool-area-full",
	"toner-empty",
	"toner-low",
	"identify-printer-requested",
	"deleting",
}

// Keywords expands the bitset, lowest bit first. An empty set is "none".
func (r Reason) Keywords() []string {
	var out []string
	for i, kw := range reasonKeywords {
		if r&(1<<uint(i)) != 0 {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}

// JobState is the IPP job-state enum.
type JobState int

const (
	JobPending           JobState = 3
	JobHeld              JobState = 4
	JobProcessing        JobState = 5
	JobProcessingStopped JobState = 6
	JobCanceled          JobState = 7
	JobAborted           JobState = 8
	JobCompleted         JobState = 9
)

// Terminal reports whether a job in this state belongs to the completed view.
func (s JobState) Terminal() bool {
	return s >= JobCanceled
}

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobHeld:
		return "pending-held"
	case JobProcessing:
		return "processing"
	case JobProcessingStopped:
		return "processing-stopped"
	case JobCanceled:
		return "canceled"
	case JobAborted:
		return "aborted"
	case JobCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
