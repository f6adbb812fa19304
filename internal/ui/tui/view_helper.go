package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cigrirepo/Floww/internal/domain"
)

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

func prettyBody(body []byte) string {
	if len(body) == 0 {
		return "(empty)"
	}
	var js any
	if err := json.Unmarshal(body, &js); err == nil {
		b, _ := json.MarshalIndent(js, "", "  ")
		return string(b)
	}
	return string(bytes.TrimSpace(body))
}

func renderRunSummary(run domain.RunResult, runID string, execErr error) string {
	var b strings.Builder

	verdict := "PASSED"
	if execErr != nil {
		verdict = "ERROR"
	} else if run.Failed() {
		verdict = "FAILED"
	}

	b.WriteString(fmt.Sprintf("%s — %s\n", run.PipelineName, verdict))
	if runID != "" {
		b.WriteString("Run ID: ")
		b.WriteString(runID)
		b.WriteString("\n")
	}
	if execErr != nil {
		b.WriteString("Error: ")
		b.WriteString(clampString(execErr.Error(), 200))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, sr := range run.Results {
		b.WriteString(renderStepSummary(sr))
	}

	return b.String()
}

func renderStepSummary(sr domain.StepResult) string {
	var b strings.Builder

	status := "OK"
	switch {
	case sr.Skipped:
		status = "SKIP"
	case sr.Failed():
		status = "FAIL"
	}

	b.WriteString(fmt.Sprintf("[%s] %s (%s) %dms\n", status, sr.Name, sr.Kind, sr.DurationMS))

	if sr.Skipped {
		return b.String()
	}

	if sr.Error != nil {
		b.WriteString("  error: ")
		b.WriteString(string(sr.Error.Kind))
		b.WriteString(" — ")
		b.WriteString(clampString(sr.Error.Message, 160))
		b.WriteString("\n")
	} else if sr.Probe == nil {
		b.WriteString(fmt.Sprintf("  exit: %d\n", sr.ExitCode))
	}

	if sr.Probe != nil {
		b.WriteString(renderProbeSummary(*sr.Probe))
	}

	return b.String()
}

func renderProbeSummary(p domain.ProbeResult) string {
	var b strings.Builder

	if p.Error != nil {
		b.WriteString(fmt.Sprintf("  probe: %s — %s (%s)\n", p.URL, clampString(p.Error.Message, 120), p.Error.Kind))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  probe: %s — status %d in %dms (%d attempt(s))\n",
		p.URL, p.StatusCode, p.LatencyMS, p.Attempts))

	for _, a := range p.Assertions {
		status := "FAIL"
		if a.Passed {
			status = "PASS"
		}
		b.WriteString("    - ")
		b.WriteString(a.Name)
		b.WriteString(" [")
		b.WriteString(status)
		b.WriteString("] ")
		b.WriteString(a.Message)
		b.WriteString("\n")
	}

	return b.String()
}

func renderProbeResponse(p domain.ProbeResult) string {
	var b strings.Builder

	b.WriteString("Headers:\n")
	if len(p.Headers) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for k, vals := range p.Headers {
			b.WriteString("  - ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(strings.Join(vals, ", "))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nBody:\n")
	body := prettyBody(p.Body)
	if p.Truncated {
		body += "\n\n(truncated)"
	}
	b.WriteString(body)
	b.WriteString("\n")

	return b.String()
}
