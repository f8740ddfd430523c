package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
)

const (
	parameterIndexDoc   = "docs/PARAMETER_INDEX.md"
	traceKeyRegistryDoc = "docs/TRACE_KEY_REGISTRY.md"
)

// Phrases the parameter index must contain.
var parameterIndexPhrases = []string{"Trace Record", "external"}

var markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// runParamCheckCmd implements `dschema paramcheck`.
//
// Checks that the parameter index exists, describes the record and points at
// the key registry document, that every registered key is documented, and
// that relative links in both documents resolve.
//
// Exit codes:
//
//	0 = docs in sync
//	1 = drift found
//	2 = usage or runtime error
func runParamCheckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("paramcheck", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		root         string
		registryFile string
		jsonOutput   bool
	)
	cmd.StringVar(&root, "root", ".", "Repository root containing docs/")
	cmd.StringVar(&registryFile, "registry", "", "YAML registry table (default: embedded table)")
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

	issues, err := checkParameterDocs(root, reg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]any{"passed": len(issues) == 0, "issues": issues}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if len(issues) == 0 {
		_, _ = fmt.Fprintf(stdout, "parameter docs in sync (%d registered keys)\n", reg.Len())
	} else {
		for _, issue := range issues {
			_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
		}
		_, _ = fmt.Fprintf(stdout, "%d documentation issue(s)\n", len(issues))
	}

	if len(issues) > 0 {
		return 1
	}
	return 0
}

// checkParameterDocs returns documentation drift under root. The error is
// reserved for I/O failures other than a missing document.
func checkParameterDocs(root string, reg *registry.Registry) ([]string, error) {
	issues := []string{}

	index, err := os.ReadFile(filepath.Join(root, parameterIndexDoc))
	if errors.Is(err, fs.ErrNotExist) {
		return append(issues, parameterIndexDoc+" missing"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", parameterIndexDoc, err)
	}
	text := string(index)

	for _, phrase := range parameterIndexPhrases {
		if !strings.Contains(text, phrase) {
			issues = append(issues, fmt.Sprintf("%s must mention %q", parameterIndexDoc, phrase))
		}
	}
	if !strings.Contains(text, "TRACE_KEY_REGISTRY") && !strings.Contains(text, "pkg/registry") {
		issues = append(issues, fmt.Sprintf("%s must reference TRACE_KEY_REGISTRY or pkg/registry", parameterIndexDoc))
	}

	docs := []string{parameterIndexDoc}
	registryDoc, err := os.ReadFile(filepath.Join(root, traceKeyRegistryDoc))
	switch {
	case err == nil:
		text += "\n" + string(registryDoc)
		docs = append(docs, traceKeyRegistryDoc)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", traceKeyRegistryDoc, err)
	}

	for _, key := range reg.Keys() {
		if !strings.Contains(text, key) {
			issues = append(issues, fmt.Sprintf("registered key %q not documented in %s or %s",
				key, parameterIndexDoc, traceKeyRegistryDoc))
		}
	}

	for _, doc := range docs {
		linkIssues, err := brokenLinks(root, doc)
		if err != nil {
			return nil, err
		}
		issues = append(issues, linkIssues...)
	}
	return issues, nil
}

// brokenLinks reports relative markdown links in doc that resolve neither
// from the document's directory nor from root.
func brokenLinks(root, doc string) ([]string, error) {
	path := filepath.Join(root, doc)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc, err)
	}
	defer func() { _ = f.Close() }()

	var issues []string
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		for _, m := range markdownLinkRe.FindAllStringSubmatch(sc.Text(), -1) {
			link := m[2]
			if strings.HasPrefix(link, "http") || strings.HasPrefix(link, "#") {
				continue
			}
			link, _, _ = strings.Cut(link, "#")
			if exists(filepath.Join(filepath.Dir(path), link)) || exists(filepath.Join(root, link)) {
				continue
			}
			issues = append(issues, fmt.Sprintf("%s:%d: broken link %q", doc, lineNum, m[2]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", doc, err)
	}
	return issues, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
