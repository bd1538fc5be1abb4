package loadgen

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Stats is a point-in-time copy of the run counters.
type Stats struct {
	TotalOriginated uint64            `json:"total_originated"`
	TotalAnswered   uint64            `json:"total_answered"`
	TotalFailed     uint64            `json:"total_failed"`
	LiveSessions    int               `json:"live_sessions"`
	HangupCauses    map[string]uint64 `json:"hangup_causes"`
}

// Snapshot copies the current counters and hangup-cause breakdown.
func (o *Orchestrator) Snapshot() Stats {
	causes := make(map[string]uint64, len(o.hangupCauses))
	for cause, count := range o.hangupCauses {
		causes[cause] = count
	}
	return Stats{
		TotalOriginated: o.totalOriginated,
		TotalAnswered:   o.totalAnswered,
		TotalFailed:     o.totalFailed,
		LiveSessions:    len(o.sessions),
		HangupCauses:    causes,
	}
}

// WriteReport writes the end-of-run summary.
func (s Stats) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "Total originated sessions: %d\n", s.TotalOriginated)
	fmt.Fprintf(w, "Total answered sessions: %d\n", s.TotalAnswered)
	fmt.Fprintf(w, "Total failed sessions: %d\n", s.TotalFailed)
	fmt.Fprintln(w, "-- Call Hangup Stats --")

	causes := make([]string, 0, len(s.HangupCauses))
	for cause := range s.HangupCauses {
		causes = append(causes, cause)
	}
	sort.Strings(causes)
	for _, cause := range causes {
		fmt.Fprintf(w, "%s: %d\n", cause, s.HangupCauses[cause])
	}
	fmt.Fprintln(w, "-----------------------")
}

// WriteJSON writes the end-of-run summary as a single JSON object, for
// consumption by scripts wrapping the tool.
func (s Stats) WriteJSON(w io.Writer) error {
	if s.HangupCauses == nil {
		s.HangupCauses = map[string]uint64{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
