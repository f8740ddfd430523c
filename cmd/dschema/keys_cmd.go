package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
)

type keyCheck struct {
	Key        string   `json:"key"`
	Valid      bool     `json:"valid"`
	Registered bool     `json:"registered"`
	Namespace  string   `json:"namespace,omitempty"`
	Reserved   bool     `json:"reserved"`
	Issues     []string `json:"issues,omitempty"`
}

// runKeysCmd implements `dschema keys`.
//
// Without arguments it lists the registry. With arguments it checks each key
// against the grammar of --mode and the registry, treating --strict
// namespaces as closed.
//
// Exit codes:
//
//	0 = listing printed, or every key passed
//	1 = at least one key failed
//	2 = usage or runtime error
func runKeysCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keys", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		registryFile string
		modeName     string
		strict       string
		jsonOutput   bool
	)
	cmd.StringVar(&registryFile, "registry", "", "YAML registry table (default: embedded table)")
	cmd.StringVar(&modeName, "mode", string(registry.ModeBoth), "Key grammar: context, trace or both")
	cmd.StringVar(&strict, "strict", "", "Comma-separated namespaces whose keys must be registered")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	reg := registry.Default()
	if registryFile != "" {
		var err error
		if reg, err = registry.LoadFile(registryFile); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	if cmd.NArg() == 0 {
		return listKeys(reg, jsonOutput, stdout)
	}

	mode, err := registry.ParseMode(modeName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	var strictNamespaces []string
	for _, ns := range strings.Split(strict, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			strictNamespaces = append(strictNamespaces, ns)
		}
	}

	failed := false
	checks := make([]keyCheck, 0, cmd.NArg())
	for _, key := range cmd.Args() {
		c := keyCheck{
			Key:        key,
			Valid:      registry.IsValidKey(key, mode),
			Registered: reg.Contains(key),
			Namespace:  registry.Namespace(key),
		}
		c.Reserved = c.Namespace != "" && registry.IsReservedNamespace(c.Namespace)
		c.Issues = registry.Strings(reg.Validate(map[string]any{key: nil}, mode, strictNamespaces...))
		if len(c.Issues) > 0 {
			failed = true
		}
		checks = append(checks, c)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(checks, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		for _, c := range checks {
			if len(c.Issues) == 0 {
				_, _ = fmt.Fprintf(stdout, "ok    %s%s\n", c.Key, keyNotes(c))
				continue
			}
			_, _ = fmt.Fprintf(stdout, "FAIL  %s: %s\n", c.Key, strings.Join(c.Issues, ", "))
		}
	}

	if failed {
		return 1
	}
	return 0
}

func keyNotes(c keyCheck) string {
	var notes []string
	if c.Registered {
		notes = append(notes, "registered")
	}
	if c.Reserved {
		notes = append(notes, "reserved namespace "+c.Namespace)
	}
	if len(notes) == 0 {
		return ""
	}
	return " (" + strings.Join(notes, ", ") + ")"
}

func listKeys(reg *registry.Registry, jsonOutput bool, stdout io.Writer) int {
	entries := reg.Entries()
	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tOWNER\tSINCE\tDESCRIPTION")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Owner, e.IntroducedIn, e.Description)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(stdout, "%d registered keys; reserved namespaces: %s\n",
		reg.Len(), strings.Join(registry.ReservedNamespaces(), ", "))
	return 0
}
