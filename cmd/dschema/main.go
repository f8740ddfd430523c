// Command dschema checks trace record streams, the key registry and schema
// version compatibility from the command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = ok
//	1 = check failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "keys":
		return runKeysCmd(args[2:], stdout, stderr)
	case "compat":
		return runCompatCmd(args[2:], stdout, stderr)
	case "paramcheck":
		return runParamCheckCmd(args[2:], stdout, stderr)
	case "version", "--version":
		return runVersionCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sdschema%s (schema %s)\n", colorBold, colorReset, version.Current())
	_, _ = fmt.Fprintf(w, "%sTrace record contract tooling.%s\n", colorGray, colorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  dschema <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "RECORDS")
	printCommand(w, "validate", "Admit a JSONL record stream (--config, --json, --fail-on)")
	printCommand(w, "compat", "Gate a schema version (--major, --min-minor, --max-minor, --constraint)")

	printSection(w, "REGISTRY")
	printCommand(w, "keys", "List registered keys or check keys (--mode, --registry, --json)")
	printCommand(w, "paramcheck", "Check that registered keys are documented (--root)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show the schema version")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-12s%s %s\n", colorGreen, name, colorReset, desc)
}
