package memory

import (
	"strings"
	"testing"
)

// logDump builds n consecutive timestamped log lines.
func logDump(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("2026-08-01 12:30:0")
		sb.WriteByte(byte('0' + i%10))
		sb.WriteString(" INFO heater loop nominal\n")
	}
	return sb.String()
}

// ─── Marker stripping ──────────────────────────────────────────────────────

func TestFilterContent_StripsChartMarker(t *testing.T) {
	in := "Here is the trend.\n<!-- PLOTLY_CHART:{\"data\":[1,2,3]} -->\nDone."
	out := FilterContent(in)
	if strings.Contains(out, "PLOTLY_CHART") {
		t.Errorf("chart marker survived filtering: %q", out)
	}
	if !strings.Contains(out, "Here is the trend.") || !strings.Contains(out, "Done.") {
		t.Errorf("surrounding text lost: %q", out)
	}
}

func TestFilterContent_StripsImageMarker(t *testing.T) {
	in := "Attached:\n<!-- ATTACHED_IMAGES:[\"a.png\",\"b.png\"] -->"
	out := FilterContent(in)
	if strings.Contains(out, "ATTACHED_IMAGES") {
		t.Errorf("image marker survived filtering: %q", out)
	}
}

// ─── Log dump collapsing ───────────────────────────────────────────────────

func TestFilterContent_CollapsesLogDump(t *testing.T) {
	in := "Findings below.\n" + logDump(8) + "That was the log."
	out := FilterContent(in)
	if !strings.Contains(out, logPlaceholder) {
		t.Fatalf("expected log placeholder in output: %q", out)
	}
	if strings.Contains(out, "heater loop nominal") {
		t.Errorf("raw log lines survived filtering: %q", out)
	}
}

func TestFilterContent_KeepsShortLogRuns(t *testing.T) {
	in := "Only a few lines:\n" + logDump(4)
	out := FilterContent(in)
	if strings.Contains(out, logPlaceholder) {
		t.Errorf("short run should not be collapsed: %q", out)
	}
}

func TestFilterContent_BracketedTimestamps(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 6; i++ {
		sb.WriteString("[2026-08-01 12:30:00] ERROR sensor read failed\n")
	}
	out := FilterContent(sb.String())
	if !strings.Contains(out, logPlaceholder) {
		t.Errorf("bracketed timestamp run not collapsed: %q", out)
	}
}

// ─── Code block elision ────────────────────────────────────────────────────

func TestFilterContent_ElidesLargeCodeBlock(t *testing.T) {
	body := strings.Repeat("x := compute()\n", 200) // well over the limit
	in := "Look:\n```go\n" + body + "```\nEnd."
	out := FilterContent(in)
	if !strings.Contains(out, "[large code block elided]") {
		t.Fatalf("expected code placeholder: %q", out)
	}
	if strings.Contains(out, "x := compute()") {
		t.Errorf("large code body survived: %q", out)
	}
}

func TestFilterContent_KeepsSmallCodeBlock(t *testing.T) {
	in := "```go\nfmt.Println(\"hi\")\n```"
	out := FilterContent(in)
	if !strings.Contains(out, "fmt.Println") {
		t.Errorf("small code block should be preserved: %q", out)
	}
}

func TestFilterContent_UnbalancedFencePassesThrough(t *testing.T) {
	in := "```go\nno closing fence here"
	out := FilterContent(in)
	if out != in {
		t.Errorf("unbalanced fence changed: %q", out)
	}
}

// ─── General properties ────────────────────────────────────────────────────

func TestFilterContent_Idempotent(t *testing.T) {
	in := "Intro\n<!-- PLOTLY_CHART:{} -->\n" + logDump(6) +
		"```py\n" + strings.Repeat("print(1)\n", 300) + "```\ntail"
	once := FilterContent(in)
	twice := FilterContent(once)
	if once != twice {
		t.Errorf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestFilterContent_PlainTextUnchanged(t *testing.T) {
	in := "Just a normal answer with no artifacts."
	if out := FilterContent(in); out != in {
		t.Errorf("plain text changed: %q", out)
	}
}

func TestFilterContent_Empty(t *testing.T) {
	if out := FilterContent(""); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}
