package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/decision-schema/pkg/compat"
	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

type compatReport struct {
	Version    string `json:"version"`
	Range      string `json:"range,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Compatible bool   `json:"compatible"`
	Track      string `json:"track,omitempty"`
}

// runCompatCmd implements `dschema compat`.
//
// Gates one schema version against a consumer range, or against a SemVer
// constraint when --constraint is given.
//
// Exit codes:
//
//	0 = compatible
//	1 = incompatible
//	2 = usage error or unparsable constraint
func runCompatCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compat", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	current, _ := compat.ParseVersion(version.Current())

	var (
		major      int
		minMinor   int
		maxMinor   int
		constraint string
		jsonOutput bool
	)
	cmd.IntVar(&major, "major", current.Major, "Expected major version")
	cmd.IntVar(&minMinor, "min-minor", -1, "Inclusive lower minor bound on the 0.x track (-1 = none)")
	cmd.IntVar(&maxMinor, "max-minor", -1, "Inclusive upper minor bound on the 0.x track (-1 = none)")
	cmd.StringVar(&constraint, "constraint", "", "SemVer constraint such as \"~0.2\"; replaces the range flags")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: dschema compat [flags] <version>")
		return 2
	}
	for _, f := range []struct {
		name  string
		bound int
	}{{"min-minor", minMinor}, {"max-minor", maxMinor}} {
		if f.bound < -1 {
			_, _ = fmt.Fprintf(stderr, "Error: --%s must be >= 0 or -1 for none, got %d\n", f.name, f.bound)
			return 2
		}
	}
	v := cmd.Arg(0)
	report := compatReport{Version: v}
	if parsed, err := compat.ParseVersion(v); err == nil {
		report.Track = string(parsed.Track())
	}

	if constraint != "" {
		ok, err := compat.Satisfies(v, constraint)
		if err != nil && !errors.Is(err, compat.ErrInvalidVersionFormat) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		report.Constraint = constraint
		report.Compatible = ok
	} else {
		var opts []compat.Option
		if minMinor >= 0 {
			opts = append(opts, compat.WithMinMinor(minMinor))
		}
		if maxMinor >= 0 {
			opts = append(opts, compat.WithMaxMinor(maxMinor))
		}
		rng := compat.NewRange(major, opts...)
		report.Range = rng.String()
		report.Compatible = rng.Admits(v)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		against := report.Range
		if report.Constraint != "" {
			against = report.Constraint
		}
		verdict := "compatible"
		if !report.Compatible {
			verdict = "incompatible"
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s with %s\n", v, verdict, against)
	}

	if !report.Compatible {
		return 1
	}
	return 0
}

// runVersionCmd implements `dschema version`.
func runVersionCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("version", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	v := version.Current()
	if *jsonOutput {
		track := ""
		if parsed, err := compat.ParseVersion(v); err == nil {
			track = string(parsed.Track())
		}
		data, _ := json.Marshal(map[string]string{"schemaVersion": v, "track": track})
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	_, _ = fmt.Fprintln(stdout, v)
	return 0
}
