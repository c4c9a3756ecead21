// Package reporter formats scenario run results.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ScenarioResult is the outcome of one scenario run. A nil Err means
// the scenario passed.
type ScenarioResult struct {
	ID       string
	Name     string
	Duration time.Duration
	Err      error

	// Description is the scenario's own summary, shown in verbose
	// text output.
	Description string
}

// Passed reports whether the scenario ran without error.
func (r *ScenarioResult) Passed() bool {
	return r.Err == nil
}

// SuiteResult aggregates the results of one runner invocation.
type SuiteResult struct {
	SuiteName string
	Results   []*ScenarioResult
	Duration  time.Duration
	PassCount int
	FailCount int
}

// Add appends a result and updates the counters.
func (s *SuiteResult) Add(r *ScenarioResult) {
	s.Results = append(s.Results, r)
	if r.Passed() {
		s.PassCount++
	} else {
		s.FailCount++
	}
}

// Reporter formats and outputs run results.
type Reporter interface {
	// ReportSuite reports the results of a whole run.
	ReportSuite(result *SuiteResult)

	// ReportScenario reports a single scenario result.
	ReportScenario(result *ScenarioResult)
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportSuite reports suite results in text format.
func (r *TextReporter) ReportSuite(result *SuiteResult) {
	fmt.Fprintf(r.writer, "\n=== Suite: %s ===\n", result.SuiteName)
	fmt.Fprintf(r.writer, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.writer, "\n")

	for _, sr := range result.Results {
		r.ReportScenario(sr)
	}

	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:  %d\n", len(result.Results))
	fmt.Fprintf(r.writer, "Passed: %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Failed: %d\n", result.FailCount)

	total := result.PassCount + result.FailCount
	if total > 0 {
		rate := float64(result.PassCount) / float64(total) * 100
		fmt.Fprintf(r.writer, "Pass Rate: %.1f%%\n", rate)
	}
}

// ReportScenario reports a single scenario result in text format.
func (r *TextReporter) ReportScenario(result *ScenarioResult) {
	status := "PASS"
	if !result.Passed() {
		status = "FAIL"
	}

	fmt.Fprintf(r.writer, "[%s] %s - %s (%s)\n",
		status, result.ID, result.Name, result.Duration.Round(time.Millisecond))

	if r.verbose && result.Description != "" {
		fmt.Fprintf(r.writer, "       %s\n", result.Description)
	}
	if !result.Passed() {
		fmt.Fprintf(r.writer, "       Error: %v\n", result.Err)
	}
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONSuiteResult is the JSON representation of suite results.
type JSONSuiteResult struct {
	SuiteName string               `json:"suite_name"`
	Duration  string               `json:"duration"`
	Total     int                  `json:"total"`
	Passed    int                  `json:"passed"`
	Failed    int                  `json:"failed"`
	PassRate  float64              `json:"pass_rate"`
	Scenarios []JSONScenarioResult `json:"scenarios"`
}

// JSONScenarioResult is the JSON representation of a scenario result.
type JSONScenarioResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// ReportSuite reports suite results in JSON format.
func (r *JSONReporter) ReportSuite(result *SuiteResult) {
	total := result.PassCount + result.FailCount
	var passRate float64
	if total > 0 {
		passRate = float64(result.PassCount) / float64(total) * 100
	}

	jr := JSONSuiteResult{
		SuiteName: result.SuiteName,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results),
		Passed:    result.PassCount,
		Failed:    result.FailCount,
		PassRate:  passRate,
		Scenarios: make([]JSONScenarioResult, 0, len(result.Results)),
	}

	for _, sr := range result.Results {
		jr.Scenarios = append(jr.Scenarios, scenarioToJSON(sr))
	}

	r.writeJSON(jr)
}

// ReportScenario reports a single scenario result in JSON format.
func (r *JSONReporter) ReportScenario(result *ScenarioResult) {
	r.writeJSON(scenarioToJSON(result))
}

func scenarioToJSON(result *ScenarioResult) JSONScenarioResult {
	status := "passed"
	if !result.Passed() {
		status = "failed"
	}

	jr := JSONScenarioResult{
		ID:       result.ID,
		Name:     result.Name,
		Status:   status,
		Duration: result.Duration.Round(time.Millisecond).String(),
	}
	if result.Err != nil {
		jr.Error = result.Err.Error()
	}
	return jr
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}

	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML format for CI integration.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportSuite reports suite results in JUnit XML format.
func (r *JUnitReporter) ReportSuite(result *SuiteResult) {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")

	fmt.Fprintf(&b, `<testsuite name="%s" tests="%d" failures="%d" time="%.3f">`,
		escapeXML(result.SuiteName),
		len(result.Results),
		result.FailCount,
		result.Duration.Seconds())
	b.WriteString("\n")

	for _, sr := range result.Results {
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s" time="%.3f">`,
			escapeXML(sr.Name),
			escapeXML(sr.ID),
			sr.Duration.Seconds())
		b.WriteString("\n")

		if !sr.Passed() {
			fmt.Fprintf(&b, `    <failure message="%s"/>`, escapeXML(sr.Err.Error()))
			b.WriteString("\n")
		}

		b.WriteString("  </testcase>\n")
	}

	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

// ReportScenario reports a single scenario in JUnit format, wrapped in
// a minimal testsuite.
func (r *JUnitReporter) ReportScenario(result *ScenarioResult) {
	suite := &SuiteResult{
		SuiteName: "Single Scenario",
		Duration:  result.Duration,
	}
	suite.Add(result)
	r.ReportSuite(suite)
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
