// Command perilink-test runs link scenarios against a simulated board.
//
// Scenarios are YAML files describing a board's boot state and a list
// of session and packet steps. The runner boots the full daemon stack
// in process, with a simulated board standing in for the serial link,
// so a scenario exercises the command parser, the engine loop, and
// the packet framing end to end.
//
// Usage:
//
//	perilink-test [flags] [pattern]
//
// The optional pattern is a regular expression matched against each
// scenario's ID and name; only matching scenarios run.
//
// Flags:
//
//	-scenarios string   Path to the scenario directory (default "./scenarios")
//	-recursive          Recurse into subdirectories
//	-timeout duration   Per-scenario timeout (default 30s)
//	-verbose            Enable verbose output
//	-json               Output results as JSON
//	-junit              Output results as JUnit XML
//	-version            Print version and exit
//
// Examples:
//
//	# Run the shipped scenario suite
//	perilink-test -scenarios internal/testharness/scenarios
//
//	# Run only the timeout scenarios, verbosely
//	perilink-test -scenarios internal/testharness/scenarios -verbose "SC-TIME"
//
//	# Emit JUnit XML for CI
//	perilink-test -scenarios internal/testharness/scenarios -junit > results.xml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/perilink/perilink-go/internal/testharness/loader"
	"github.com/perilink/perilink-go/internal/testharness/reporter"
	"github.com/perilink/perilink-go/internal/testharness/runner"
	"github.com/perilink/perilink-go/pkg/version"
)

var (
	scenarioDir = flag.String("scenarios", "./scenarios", "Path to the scenario directory")
	recursive   = flag.Bool("recursive", false, "Recurse into subdirectories")
	timeout     = flag.Duration("timeout", 30*time.Second, "Per-scenario timeout")
	verbose     = flag.Bool("verbose", false, "Enable verbose output")
	jsonOut     = flag.Bool("json", false, "Output results as JSON")
	junitOut    = flag.Bool("junit", false, "Output results as JUnit XML")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// logger feeds the engine and session packages in verbose runs. Nil
// keeps them quiet.
var logger *slog.Logger

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("perilink-test %s (protocol %s)\n", version.Daemon, version.Current)
		return
	}

	var pattern *regexp.Regexp
	if flag.NArg() > 0 {
		re, err := regexp.Compile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: bad pattern: %v\n", err)
			os.Exit(1)
		}
		pattern = re
	}

	load := loader.LoadDirectory
	if *recursive {
		load = loader.LoadDirectoryRecursive
	}
	scenarios, err := load(*scenarioDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	scenarios = filterScenarios(scenarios, pattern)
	if len(scenarios) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scenarios matched")
		os.Exit(1)
	}

	outputFormat := "text"
	if *jsonOut {
		outputFormat = "json"
	} else if *junitOut {
		outputFormat = "junit"
	}

	if outputFormat == "text" {
		log.SetFlags(log.Ltime)
		if *verbose {
			log.SetFlags(log.Ltime | log.Lmicroseconds)
		}
		fmt.Println("Perilink Scenario Runner")
		fmt.Println("========================")
		log.Printf("Scenarios: %s (%d)", *scenarioDir, len(scenarios))
		if pattern != nil {
			log.Printf("Pattern: %s", pattern)
		}
	}

	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	suite := &reporter.SuiteResult{SuiteName: filepath.Clean(*scenarioDir)}
	suiteStart := time.Now()
	for _, sc := range scenarios {
		if outputFormat == "text" {
			log.Printf("Running %s - %s", sc.ID, sc.Name)
		}
		suite.Add(runScenario(sc))
	}
	suite.Duration = time.Since(suiteStart)

	var rep reporter.Reporter
	switch outputFormat {
	case "json":
		rep = reporter.NewJSONReporter(os.Stdout, true)
	case "junit":
		rep = reporter.NewJUnitReporter(os.Stdout)
	default:
		rep = reporter.NewTextReporter(os.Stdout, *verbose)
	}
	rep.ReportSuite(suite)

	if suite.FailCount > 0 {
		os.Exit(1)
	}
}

// runScenario executes one scenario under its own timeout.
func runScenario(sc *loader.Scenario) *reporter.ScenarioResult {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	err := runner.New(sc, logger).Run(ctx)
	return &reporter.ScenarioResult{
		ID:          sc.ID,
		Name:        sc.Name,
		Description: sc.Description,
		Duration:    time.Since(start),
		Err:         err,
	}
}

func filterScenarios(scenarios []*loader.Scenario, pattern *regexp.Regexp) []*loader.Scenario {
	if pattern == nil {
		return scenarios
	}
	var matched []*loader.Scenario
	for _, sc := range scenarios {
		if pattern.MatchString(sc.ID) || pattern.MatchString(sc.Name) {
			matched = append(matched, sc)
		}
	}
	return matched
}
