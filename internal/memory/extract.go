package memory

import (
	"regexp"
	"strings"
)

// rule detects one category of fact in an assistant response and applies it
// to the candidate state. Rules are independent and unit-testable; absence of
// a match leaves the state untouched.
type rule interface {
	apply(response string, st *DiagnosticState)
}

// Extractor derives diagnostic-state updates from raw assistant responses by
// running an ordered rule list over the text. Extract is a pure function of
// (response, previous).
type Extractor struct {
	rules []rule
}

// NewExtractor compiles the rule set into an Extractor.
func NewExtractor(rs RuleSet) (*Extractor, error) {
	rs = rs.withDefaults()

	ipRe, err := compilePattern("ip", rs.IPPattern)
	if err != nil {
		return nil, err
	}
	logRe, err := compilePattern("log_file", rs.LogFilePattern)
	if err != nil {
		return nil, err
	}
	rcRe, err := compilePattern("root_cause", rs.RootCausePattern)
	if err != nil {
		return nil, err
	}
	hypRe, err := compilePattern("hypothesis", rs.HypothesisPattern)
	if err != nil {
		return nil, err
	}
	findRe, err := compilePattern("finding", rs.FindingPattern)
	if err != nil {
		return nil, err
	}

	return &Extractor{rules: []rule{
		&deviceRule{re: ipRe, names: rs.DeviceNames},
		&logFileRule{re: logRe},
		&phraseRule{re: findRe, min: rs.FindingMinLen, max: rs.FindingMaxLen,
			target: func(st *DiagnosticState) *[]string { return &st.Findings }, cap: maxFindings},
		&phraseRule{re: hypRe, min: rs.HypothesisMinLen, max: rs.HypothesisMaxLen,
			target: func(st *DiagnosticState) *[]string { return &st.Hypotheses }},
		&phraseRule{re: rcRe, min: rs.RootCauseMinLen, max: rs.RootCauseMaxLen,
			target: func(st *DiagnosticState) *[]string { return &st.RootCauses }},
	}}, nil
}

// Extract merges facts detected in response into previous and returns the
// new state. Identity fields follow most-recent-wins; list fields are
// unioned preserving first-seen order; status follows the idle →
// investigating → resolved transitions.
func (e *Extractor) Extract(response string, previous DiagnosticState) DiagnosticState {
	st := previous.Clone()
	for _, r := range e.rules {
		r.apply(response, &st)
	}

	newIdentity := (st.DeviceIP != "" && st.DeviceIP != previous.DeviceIP) ||
		(st.LastLogFile != "" && st.LastLogFile != previous.LastLogFile)

	if st.Status == StatusResolved && newIdentity {
		st.Status = StatusInvestigating
	}
	if st.Status == StatusIdle && (st.DeviceIP != "" || st.LastLogFile != "") {
		st.Status = StatusInvestigating
	}
	if st.Status == StatusInvestigating && len(st.RootCauses) > len(previous.RootCauses) {
		st.Status = StatusResolved
	}
	return st
}

// ExtractDeviceQuery reports whether text references a known device IP and,
// if so, returns the address with its derived device name.
func (e *Extractor) ExtractDeviceQuery(text string) (ip, name string, ok bool) {
	dr, _ := e.rules[0].(*deviceRule)
	if dr == nil {
		return "", "", false
	}
	return dr.match(text)
}

// ---------------------------------------------------------------------------
// Rule implementations

// deviceRule sets device_ip (last match wins) and derives device_name from
// the captured discriminator token through the names map.
type deviceRule struct {
	re    *regexp.Regexp
	names map[string]string
}

func (r *deviceRule) apply(response string, st *DiagnosticState) {
	ip, name, ok := r.match(response)
	if !ok {
		return
	}
	st.DeviceIP = ip
	if name != "" {
		st.DeviceName = name
	}
}

func (r *deviceRule) match(text string) (ip, name string, ok bool) {
	ms := r.re.FindAllStringSubmatch(text, -1)
	if len(ms) == 0 {
		return "", "", false
	}
	m := ms[len(ms)-1] // most recent reference wins
	ip = m[0]
	if len(m) > 1 && m[1] != "" {
		if n, found := r.names[m[1]]; found {
			name = n
		} else {
			name = "0" + m[1]
		}
	}
	return ip, name, true
}

// logFileRule records referenced log files: last_log_file tracks the newest
// reference, downloaded_logs unions them in first-seen order.
type logFileRule struct {
	re *regexp.Regexp
}

func (r *logFileRule) apply(response string, st *DiagnosticState) {
	for _, m := range r.re.FindAllStringSubmatch(response, -1) {
		log := m[len(m)-1]
		st.LastLogFile = log
		if !containsNormalized(st.DownloadedLogs, log) {
			st.DownloadedLogs = append(st.DownloadedLogs, log)
		}
	}
}

// phraseRule captures keyword-anchored phrases into one of the state's list
// fields, de-duplicating by normalized text. A non-zero cap drops the oldest
// entries once exceeded.
type phraseRule struct {
	re       *regexp.Regexp
	min, max int
	target   func(*DiagnosticState) *[]string
	cap      int
}

func (r *phraseRule) apply(response string, st *DiagnosticState) {
	list := r.target(st)
	for _, m := range r.re.FindAllStringSubmatch(response, -1) {
		phrase := strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
		if len(phrase) < r.min || len(phrase) > r.max {
			continue
		}
		if containsNormalized(*list, phrase) {
			continue
		}
		*list = append(*list, phrase)
		if r.cap > 0 && len(*list) > r.cap {
			*list = (*list)[len(*list)-r.cap:]
		}
	}
}

// containsNormalized reports whether xs already holds s under case- and
// whitespace-insensitive comparison.
func containsNormalized(xs []string, s string) bool {
	n := normalize(s)
	for _, x := range xs {
		if normalize(x) == n {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
