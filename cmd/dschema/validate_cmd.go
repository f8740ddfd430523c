package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/decision-schema/pkg/admission"
	"github.com/Mindburn-Labs/decision-schema/pkg/config"
	"github.com/Mindburn-Labs/decision-schema/pkg/contracts"
)

var verdictRank = map[admission.Verdict]int{
	admission.VerdictAccept:     0,
	admission.VerdictWarn:       1,
	admission.VerdictQuarantine: 2,
	admission.VerdictReject:     3,
}

type lineResult struct {
	Line int `json:"line"`
	admission.Result
}

type validateSummary struct {
	Records     int `json:"records"`
	Accepted    int `json:"accepted"`
	Warned      int `json:"warned"`
	Quarantined int `json:"quarantined"`
	Rejected    int `json:"rejected"`
}

type validateReport struct {
	Policy  string          `json:"policy"`
	Results []lineResult    `json:"results"`
	Summary validateSummary `json:"summary"`
	Passed  bool            `json:"passed"`
}

// runValidateCmd implements `dschema validate`.
//
// Reads newline-delimited trace records from a file (or "-" for stdin) and
// runs each through the admission gate configured from the environment or
// --config.
//
// Exit codes:
//
//	0 = every record below the --fail-on verdict
//	1 = at least one record at or above --fail-on
//	2 = usage or runtime error
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		jsonOutput bool
		failOn     string
	)
	cmd.StringVar(&configPath, "config", "", "YAML config file (environment overrides still apply)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.StringVar(&failOn, "fail-on", string(admission.VerdictQuarantine), "Lowest verdict that fails the run: warn, quarantine or reject")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: dschema validate [flags] <records.jsonl|->")
		return 2
	}
	threshold, ok := verdictRank[admission.Verdict(failOn)]
	if !ok || threshold == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: --fail-on must be warn, quarantine or reject, got %q\n", failOn)
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	policy, err := cfg.Policy()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	reg, err := cfg.Registry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	gate, err := admission.New(policy,
		admission.WithRegistry(reg),
		admission.WithLogger(cfg.Logger(stderr)),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	in, closeIn, err := openInput(cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeIn()

	report := validateReport{Policy: policy.Range().String(), Results: []lineResult{}}
	ctx := context.Background()

	dec := contracts.NewDecoder(in)
	for {
		raw, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read %v\n", err)
			return 2
		}
		res := gate.AdmitLine(ctx, raw)
		report.Results = append(report.Results, lineResult{Line: dec.Line(), Result: res})
		report.Summary.add(res.Verdict)
	}

	report.Passed = true
	for _, r := range report.Results {
		if verdictRank[r.Verdict] >= threshold {
			report.Passed = false
			break
		}
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printValidateReport(stdout, report)
	}

	if !report.Passed {
		return 1
	}
	return 0
}

func (s *validateSummary) add(v admission.Verdict) {
	s.Records++
	switch v {
	case admission.VerdictAccept:
		s.Accepted++
	case admission.VerdictWarn:
		s.Warned++
	case admission.VerdictQuarantine:
		s.Quarantined++
	case admission.VerdictReject:
		s.Rejected++
	}
}

func printValidateReport(w io.Writer, report validateReport) {
	for _, r := range report.Results {
		if r.Verdict == admission.VerdictAccept && len(r.Diagnostics) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "line %d: %s", r.Line, r.Verdict)
		if r.Reason != admission.ReasonNone {
			_, _ = fmt.Fprintf(w, " (%s)", r.Reason)
		}
		if r.RunID != "" {
			_, _ = fmt.Fprintf(w, " run=%s step=%d", r.RunID, r.Step)
		}
		_, _ = fmt.Fprintln(w)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  - %s\n", r.Error)
		}
		for _, issue := range r.Issues {
			_, _ = fmt.Fprintf(w, "  - %s\n", issue)
		}
		for _, d := range r.Diagnostics {
			_, _ = fmt.Fprintf(w, "  ~ %s\n", d)
		}
	}

	s := report.Summary
	status := "PASSED"
	if !report.Passed {
		status = "FAILED"
	}
	_, _ = fmt.Fprintf(w, "%s: %d records against %s: %d accepted, %d warned, %d quarantined, %d rejected\n",
		status, s.Records, report.Policy, s.Accepted, s.Warned, s.Quarantined, s.Rejected)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
