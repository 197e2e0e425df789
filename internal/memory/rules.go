package memory

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleSet is the tunable pattern grammar driving state extraction. The
// defaults match the patterns the assistant's responses are prompted to use;
// deployments with different device fleets or log naming override them via a
// YAML rules file.
//
// Phrase patterns must expose the captured phrase as group 1. The IP pattern
// should capture the device-discriminating token (the last octet) as group 1
// so a device name can be derived through DeviceNames.
type RuleSet struct {
	IPPattern   string            `yaml:"ip_pattern"`
	DeviceNames map[string]string `yaml:"device_names"`

	LogFilePattern string `yaml:"log_file_pattern"`

	RootCausePattern  string `yaml:"root_cause_pattern"`
	HypothesisPattern string `yaml:"hypothesis_pattern"`
	FindingPattern    string `yaml:"finding_pattern"`

	// Accepted phrase length windows; zero values select the defaults.
	RootCauseMinLen  int `yaml:"root_cause_min_len"`
	RootCauseMaxLen  int `yaml:"root_cause_max_len"`
	HypothesisMinLen int `yaml:"hypothesis_min_len"`
	HypothesisMaxLen int `yaml:"hypothesis_max_len"`
	FindingMinLen    int `yaml:"finding_min_len"`
	FindingMaxLen    int `yaml:"finding_max_len"`
}

// DefaultRuleSet returns the built-in pattern grammar.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		IPPattern: `\b10\.1\.1\.(4[5-9]|50)\b`,
		DeviceNames: map[string]string{
			"45": "zspr 050", "46": "zspr 051", "47": "zspr 052",
			"48": "zspr 053", "49": "zspr 054", "50": "zspr 055",
		},
		LogFilePattern:    `(Instrument\w+_\d{4}-\d{2}-\d{2}_[\d\-]+(?:\.\d+)?\.log)`,
		RootCausePattern:  `(?i)(?:root cause|confirmed|resolved)\s*[:：]\s*([^\n]+)`,
		HypothesisPattern: `(?i)(?:hypothesis|possible cause|suspect|may be caused by|likely)\s*[:：]\s*([^\n]+)`,
		FindingPattern:    `(?m)^[ \t]*[-•]\s+\*\*(.+?)\*\*`,
		RootCauseMinLen:   10, RootCauseMaxLen: 200,
		HypothesisMinLen: 10, HypothesisMaxLen: 200,
		FindingMinLen: 10, FindingMaxLen: 200,
	}
}

// LoadRuleSet reads a YAML rules file and overlays it on the defaults:
// fields left empty in the file keep their built-in values.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := DefaultRuleSet()
	data, err := os.ReadFile(path)
	if err != nil {
		return rs, fmt.Errorf("read rules %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return DefaultRuleSet(), fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rs.withDefaults(), nil
}

// withDefaults fills any zero-valued field from DefaultRuleSet.
func (rs RuleSet) withDefaults() RuleSet {
	def := DefaultRuleSet()
	if rs.IPPattern == "" {
		rs.IPPattern = def.IPPattern
	}
	if len(rs.DeviceNames) == 0 {
		rs.DeviceNames = def.DeviceNames
	}
	if rs.LogFilePattern == "" {
		rs.LogFilePattern = def.LogFilePattern
	}
	if rs.RootCausePattern == "" {
		rs.RootCausePattern = def.RootCausePattern
	}
	if rs.HypothesisPattern == "" {
		rs.HypothesisPattern = def.HypothesisPattern
	}
	if rs.FindingPattern == "" {
		rs.FindingPattern = def.FindingPattern
	}
	if rs.RootCauseMinLen == 0 {
		rs.RootCauseMinLen = def.RootCauseMinLen
	}
	if rs.RootCauseMaxLen == 0 {
		rs.RootCauseMaxLen = def.RootCauseMaxLen
	}
	if rs.HypothesisMinLen == 0 {
		rs.HypothesisMinLen = def.HypothesisMinLen
	}
	if rs.HypothesisMaxLen == 0 {
		rs.HypothesisMaxLen = def.HypothesisMaxLen
	}
	if rs.FindingMinLen == 0 {
		rs.FindingMinLen = def.FindingMinLen
	}
	if rs.FindingMaxLen == 0 {
		rs.FindingMaxLen = def.FindingMaxLen
	}
	return rs
}

// compilePattern compiles pattern, labelling errors with the rule name.
func compilePattern(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %s pattern: %w", name, err)
	}
	return re, nil
}
