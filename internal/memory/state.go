package memory

import (
	"encoding/json"
	"strings"
)

// Status is the investigation phase of a diagnostic session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// maxFindings caps the findings list; the oldest entries are dropped first
// when the cap is exceeded.
const maxFindings = 20

// DiagnosticState is the structured record of the active investigation.
// It is monotonically enriched: extraction only adds facts or overwrites the
// identity fields (device, last log), never removes recorded findings.
type DiagnosticState struct {
	DeviceIP       string   `json:"device_ip,omitempty"`
	DeviceName     string   `json:"device_name,omitempty"`
	LastLogFile    string   `json:"last_log_file,omitempty"`
	DownloadedLogs []string `json:"downloaded_logs,omitempty"`
	Findings       []string `json:"findings,omitempty"`
	Hypotheses     []string `json:"hypotheses,omitempty"`
	RootCauses     []string `json:"root_causes,omitempty"`
	Status         Status   `json:"status"`
}

// NewDiagnosticState returns an empty idle state.
func NewDiagnosticState() DiagnosticState {
	return DiagnosticState{Status: StatusIdle}
}

// Serialize encodes the state as a flat JSON object.
func (s DiagnosticState) Serialize() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DeserializeState decodes a persisted state. Empty or malformed input yields
// an empty idle state — degraded memory is never a fatal error.
func DeserializeState(raw string) DiagnosticState {
	st := NewDiagnosticState()
	if strings.TrimSpace(raw) == "" {
		return st
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return NewDiagnosticState()
	}
	if st.Status == "" {
		st.Status = StatusIdle
	}
	return st
}

// IsEmpty reports whether nothing has been recorded yet: no identity field
// set and every list empty.
func (s DiagnosticState) IsEmpty() bool {
	return s.DeviceIP == "" && s.DeviceName == "" && s.LastLogFile == "" &&
		len(s.DownloadedLogs) == 0 && len(s.Findings) == 0 &&
		len(s.Hypotheses) == 0 && len(s.RootCauses) == 0
}

// Clone returns a deep copy; list mutations on the copy never alias the
// original.
func (s DiagnosticState) Clone() DiagnosticState {
	c := s
	c.DownloadedLogs = append([]string(nil), s.DownloadedLogs...)
	c.Findings = append([]string(nil), s.Findings...)
	c.Hypotheses = append([]string(nil), s.Hypotheses...)
	c.RootCauses = append([]string(nil), s.RootCauses...)
	return c
}

// PromptBlock renders the state for the <diagnostic_context> prompt section.
// Sub-lines whose underlying field is empty are omitted; the list tails keep
// the block bounded.
func (s DiagnosticState) PromptBlock() string {
	if s.IsEmpty() {
		return ""
	}
	var lines []string

	switch {
	case s.DeviceName != "" && s.DeviceIP != "":
		lines = append(lines, "Device: "+s.DeviceName+" ("+s.DeviceIP+")")
	case s.DeviceIP != "":
		lines = append(lines, "Device: "+s.DeviceIP)
	case s.DeviceName != "":
		lines = append(lines, "Device: "+s.DeviceName)
	}
	if s.LastLogFile != "" {
		lines = append(lines, "Last log: "+s.LastLogFile)
	}
	if len(s.DownloadedLogs) > 0 {
		lines = append(lines, "Downloaded: "+strings.Join(tail(s.DownloadedLogs, 3), ", "))
	}
	if len(s.Findings) > 0 {
		lines = append(lines, "Key findings:")
		for _, f := range tail(s.Findings, 5) {
			lines = append(lines, "  - "+f)
		}
	}
	if len(s.Hypotheses) > 0 {
		lines = append(lines, "Active hypotheses:")
		for _, h := range tail(s.Hypotheses, 3) {
			lines = append(lines, "  - "+h)
		}
	}
	if len(s.RootCauses) > 0 {
		lines = append(lines, "Confirmed root causes:")
		for _, rc := range s.RootCauses {
			lines = append(lines, "  - "+rc)
		}
	}
	return strings.Join(lines, "\n")
}

// tail returns the last n elements of xs.
func tail(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
