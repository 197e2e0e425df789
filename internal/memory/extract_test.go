package memory

import (
	"fmt"
	"reflect"
	"testing"
)

// newTestExtractor compiles the default rule set.
func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := NewExtractor(DefaultRuleSet())
	if err != nil {
		t.Fatalf("compile default rules: %v", err)
	}
	return ex
}

// ─── Device identity ───────────────────────────────────────────────────────

func TestExtract_DeviceIPAndName(t *testing.T) {
	ex := newTestExtractor(t)
	st := ex.Extract("Connecting to 10.1.1.47 to pull the latest logs.", NewDiagnosticState())
	if st.DeviceIP != "10.1.1.47" {
		t.Errorf("device_ip = %q", st.DeviceIP)
	}
	if st.DeviceName != "zspr 052" {
		t.Errorf("device_name = %q", st.DeviceName)
	}
	if st.Status != StatusInvestigating {
		t.Errorf("status = %q, want investigating", st.Status)
	}
}

func TestExtract_MostRecentDeviceWins(t *testing.T) {
	ex := newTestExtractor(t)
	st := ex.Extract("Started on 10.1.1.45, then moved to 10.1.1.50.", NewDiagnosticState())
	if st.DeviceIP != "10.1.1.50" {
		t.Errorf("device_ip = %q, want last reference", st.DeviceIP)
	}
	if st.DeviceName != "zspr 055" {
		t.Errorf("device_name = %q", st.DeviceName)
	}
}

func TestExtract_OutOfRangeIPIgnored(t *testing.T) {
	ex := newTestExtractor(t)
	for _, text := range []string{"ping 10.1.1.51", "host 10.1.1.505 unreachable"} {
		st := ex.Extract(text, NewDiagnosticState())
		if st.DeviceIP != "" {
			t.Errorf("%q: unexpected device_ip %q", text, st.DeviceIP)
		}
	}
}

func TestExtract_UnknownOctetFallbackName(t *testing.T) {
	rs := DefaultRuleSet()
	rs.DeviceNames = map[string]string{"45": "zspr 050"}
	ex, err := NewExtractor(rs)
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	st := ex.Extract("Look at 10.1.1.47 please.", NewDiagnosticState())
	if st.DeviceName != "047" {
		t.Errorf("fallback name = %q, want 047", st.DeviceName)
	}
}

// ─── Log files ─────────────────────────────────────────────────────────────

func TestExtract_LogFiles(t *testing.T) {
	ex := newTestExtractor(t)
	resp := "Downloaded InstrumentLog_2026-08-01_12-30-00.log first, " +
		"then InstrumentLog_2026-08-02_09-00-00.log for comparison."
	st := ex.Extract(resp, NewDiagnosticState())
	if st.LastLogFile != "InstrumentLog_2026-08-02_09-00-00.log" {
		t.Errorf("last_log_file = %q", st.LastLogFile)
	}
	want := []string{
		"InstrumentLog_2026-08-01_12-30-00.log",
		"InstrumentLog_2026-08-02_09-00-00.log",
	}
	if !reflect.DeepEqual(st.DownloadedLogs, want) {
		t.Errorf("downloaded_logs = %v", st.DownloadedLogs)
	}
	if st.Status != StatusInvestigating {
		t.Errorf("status = %q, want investigating", st.Status)
	}
}

func TestExtract_LogFileDedup(t *testing.T) {
	ex := newTestExtractor(t)
	prev := NewDiagnosticState()
	prev.DownloadedLogs = []string{"InstrumentLog_2026-08-01_12-30-00.log"}
	st := ex.Extract("Re-read InstrumentLog_2026-08-01_12-30-00.log.", prev)
	if len(st.DownloadedLogs) != 1 {
		t.Errorf("downloaded_logs grew on duplicate: %v", st.DownloadedLogs)
	}
}

// ─── Findings, hypotheses, root causes ─────────────────────────────────────

func TestExtract_Findings(t *testing.T) {
	ex := newTestExtractor(t)
	resp := "Analysis:\n- **Temperature spike detected at 14:02**\n- **Pump pressure dropped below threshold**\n- tiny\n"
	st := ex.Extract(resp, NewDiagnosticState())
	want := []string{
		"Temperature spike detected at 14:02",
		"Pump pressure dropped below threshold",
	}
	if !reflect.DeepEqual(st.Findings, want) {
		t.Errorf("findings = %v", st.Findings)
	}
}

func TestExtract_Hypothesis(t *testing.T) {
	ex := newTestExtractor(t)
	st := ex.Extract("Possible cause: loose cable on the backplane.", NewDiagnosticState())
	if len(st.Hypotheses) != 1 || st.Hypotheses[0] != "loose cable on the backplane" {
		t.Errorf("hypotheses = %v", st.Hypotheses)
	}
}

func TestExtract_RootCauseMarksResolved(t *testing.T) {
	ex := newTestExtractor(t)
	prev := NewDiagnosticState()
	prev.DeviceIP = "10.1.1.45"
	prev.Status = StatusInvestigating
	st := ex.Extract("Root cause: faulty thermocouple sensor", prev)
	if len(st.RootCauses) != 1 || st.RootCauses[0] != "faulty thermocouple sensor" {
		t.Fatalf("root_causes = %v", st.RootCauses)
	}
	if st.Status != StatusResolved {
		t.Errorf("status = %q, want resolved", st.Status)
	}
}

func TestExtract_DedupNormalized(t *testing.T) {
	ex := newTestExtractor(t)
	prev := NewDiagnosticState()
	prev.Hypotheses = []string{"loose cable on the backplane"}
	st := ex.Extract("Hypothesis: Loose  cable on the backplane", prev)
	if len(st.Hypotheses) != 1 {
		t.Errorf("normalized duplicate re-added: %v", st.Hypotheses)
	}
}

func TestExtract_FindingsCapDropsOldest(t *testing.T) {
	ex := newTestExtractor(t)
	prev := NewDiagnosticState()
	for i := 0; i < maxFindings; i++ {
		prev.Findings = append(prev.Findings, fmt.Sprintf("earlier finding number %02d", i))
	}
	st := ex.Extract("- **A brand new finding from this turn**", prev)
	if len(st.Findings) != maxFindings {
		t.Fatalf("findings length = %d, want %d", len(st.Findings), maxFindings)
	}
	if st.Findings[0] != "earlier finding number 01" {
		t.Errorf("oldest finding not dropped: %q", st.Findings[0])
	}
	if st.Findings[maxFindings-1] != "A brand new finding from this turn" {
		t.Errorf("new finding not appended: %q", st.Findings[maxFindings-1])
	}
}

// ─── Monotonic enrichment ──────────────────────────────────────────────────

func TestExtract_NoMatchLeavesStateUntouched(t *testing.T) {
	ex := newTestExtractor(t)
	prev := populatedState()
	st := ex.Extract("Nothing diagnostic about this reply at all.", prev)
	if !reflect.DeepEqual(st, prev) {
		t.Errorf("state changed without matches:\n got %+v\nwant %+v", st, prev)
	}
}

func TestExtract_PreviousNotMutated(t *testing.T) {
	ex := newTestExtractor(t)
	prev := NewDiagnosticState()
	ex.Extract("- **Temperature spike detected at 14:02**", prev)
	if len(prev.Findings) != 0 {
		t.Errorf("previous state mutated: %v", prev.Findings)
	}
}

// ─── Status transitions ────────────────────────────────────────────────────

func TestExtract_ResolvedToInvestigatingOnNewDevice(t *testing.T) {
	ex := newTestExtractor(t)
	prev := populatedState() // resolved on 10.1.1.47
	st := ex.Extract("Now let's look at 10.1.1.46 instead.", prev)
	if st.Status != StatusInvestigating {
		t.Errorf("status = %q, want investigating after device switch", st.Status)
	}
	if st.DeviceIP != "10.1.1.46" {
		t.Errorf("device_ip = %q", st.DeviceIP)
	}
	if len(st.RootCauses) != 1 {
		t.Errorf("earlier root causes lost: %v", st.RootCauses)
	}
}

func TestExtract_ResolvedStaysResolvedWithoutNewIdentity(t *testing.T) {
	ex := newTestExtractor(t)
	prev := populatedState()
	st := ex.Extract("Glad that helped. Anything else?", prev)
	if st.Status != StatusResolved {
		t.Errorf("status = %q, want resolved", st.Status)
	}
}

// ─── ExtractDeviceQuery ────────────────────────────────────────────────────

func TestExtractDeviceQuery_Match(t *testing.T) {
	ex := newTestExtractor(t)
	ip, name, ok := ex.ExtractDeviceQuery("what's wrong with 10.1.1.50?")
	if !ok {
		t.Fatal("expected a device match")
	}
	if ip != "10.1.1.50" || name != "zspr 055" {
		t.Errorf("got ip=%q name=%q", ip, name)
	}
}

func TestExtractDeviceQuery_NoMatch(t *testing.T) {
	ex := newTestExtractor(t)
	if _, _, ok := ex.ExtractDeviceQuery("how do I parse a CSV?"); ok {
		t.Error("expected no device match")
	}
}
