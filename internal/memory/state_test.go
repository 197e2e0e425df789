package memory

import (
	"reflect"
	"strings"
	"testing"
)

// populatedState returns a state with every field set.
func populatedState() DiagnosticState {
	return DiagnosticState{
		DeviceIP:       "10.1.1.47",
		DeviceName:     "zspr 052",
		LastLogFile:    "InstrumentLog_2026-08-01_12-30-00.log",
		DownloadedLogs: []string{"InstrumentLog_2026-08-01_12-30-00.log"},
		Findings:       []string{"Temperature spike detected at 14:02"},
		Hypotheses:     []string{"loose cable on the backplane"},
		RootCauses:     []string{"faulty thermocouple sensor"},
		Status:         StatusResolved,
	}
}

// ─── Serialization ─────────────────────────────────────────────────────────

func TestState_RoundTrip(t *testing.T) {
	st := populatedState()
	got := DeserializeState(st.Serialize())
	if !reflect.DeepEqual(got, st) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, st)
	}
}

func TestState_EmptyRoundTrip(t *testing.T) {
	st := NewDiagnosticState()
	got := DeserializeState(st.Serialize())
	if !reflect.DeepEqual(got, st) {
		t.Errorf("empty round trip mismatch: %+v", got)
	}
}

func TestDeserializeState_Blank(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n"} {
		st := DeserializeState(raw)
		if st.Status != StatusIdle || !st.IsEmpty() {
			t.Errorf("blank %q: expected fresh idle state, got %+v", raw, st)
		}
	}
}

func TestDeserializeState_Malformed(t *testing.T) {
	st := DeserializeState("{not json")
	if st.Status != StatusIdle || !st.IsEmpty() {
		t.Errorf("expected fresh idle state for malformed input, got %+v", st)
	}
}

func TestDeserializeState_MissingStatus(t *testing.T) {
	st := DeserializeState(`{"device_ip":"10.1.1.45"}`)
	if st.Status != StatusIdle {
		t.Errorf("expected idle default, got %q", st.Status)
	}
	if st.DeviceIP != "10.1.1.45" {
		t.Errorf("device_ip lost: %+v", st)
	}
}

// ─── Clone ─────────────────────────────────────────────────────────────────

func TestState_CloneIsDeep(t *testing.T) {
	st := populatedState()
	c := st.Clone()
	c.Findings = append(c.Findings, "extra")
	c.Findings[0] = "mutated"
	if st.Findings[0] != "Temperature spike detected at 14:02" {
		t.Error("clone aliases the original findings slice")
	}
	if len(st.Findings) != 1 {
		t.Errorf("original findings grew: %v", st.Findings)
	}
}

// ─── PromptBlock ───────────────────────────────────────────────────────────

func TestPromptBlock_EmptyState(t *testing.T) {
	if block := NewDiagnosticState().PromptBlock(); block != "" {
		t.Errorf("expected empty block, got %q", block)
	}
}

func TestPromptBlock_FullState(t *testing.T) {
	block := populatedState().PromptBlock()
	for _, want := range []string{
		"Device: zspr 052 (10.1.1.47)",
		"Last log: InstrumentLog_2026-08-01_12-30-00.log",
		"Key findings:",
		"  - Temperature spike detected at 14:02",
		"Active hypotheses:",
		"Confirmed root causes:",
		"  - faulty thermocouple sensor",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
}

func TestPromptBlock_IPOnly(t *testing.T) {
	st := DiagnosticState{DeviceIP: "10.1.1.45", Status: StatusInvestigating}
	block := st.PromptBlock()
	if !strings.Contains(block, "Device: 10.1.1.45") {
		t.Errorf("expected bare IP line, got %q", block)
	}
	if strings.Contains(block, "()") {
		t.Errorf("empty name parenthesized: %q", block)
	}
}

func TestPromptBlock_ListTailsBounded(t *testing.T) {
	st := NewDiagnosticState()
	for i := 0; i < 15; i++ {
		st.Findings = append(st.Findings, "finding number "+string(rune('a'+i)))
	}
	block := st.PromptBlock()
	if strings.Contains(block, "finding number a") {
		t.Errorf("oldest finding should be outside the 5-item tail:\n%s", block)
	}
	if !strings.Contains(block, "finding number "+string(rune('a'+14))) {
		t.Errorf("newest finding missing:\n%s", block)
	}
	if n := strings.Count(block, "finding number"); n != 5 {
		t.Errorf("expected 5 findings rendered, got %d", n)
	}
}
