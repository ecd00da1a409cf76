// Command rbql is a small CLI and interactive demo for the RBQL
// record-processing core: it compiles a query with pkg/exprlang, reads a
// delimited file through pkg/rbqlio, and drives pkg/engine.Run against
// them, mirroring the teacher's own main.go in shape (flag-based
// Configuration struct, splash screen, optional interactive mode) while
// replacing the storage-engine REPL with a query-over-a-file one.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rbql/pkg/logging"
	"rbql/pkg/rbqlio"
)

// Configuration holds the CLI's flag-derived settings, following the
// teacher's main.go Configuration struct pattern.
type Configuration struct {
	Input       string
	Query       string
	Delim       string
	Policy      string
	Debug       bool
	Interactive bool
}

func main() {
	config := parseArguments()

	logLevel := logging.LevelInfo
	if config.Debug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logging.Config{Level: logLevel, Format: "text", Output: os.Stderr})
	defer logging.Close()

	if config.Interactive {
		showSplashScreen()
		if err := startInteractiveMode(config); err != nil {
			fmt.Fprintf(os.Stderr, "interactive mode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if config.Input == "" || config.Query == "" {
		flag.Usage()
		os.Exit(2)
	}

	policy := parsePolicy(config.Policy)
	result := runQuery(config.Query, config.Input, config.Delim, policy)
	printResult(result)
	if result.failed() {
		os.Exit(1)
	}
}

func parseArguments() Configuration {
	var config Configuration

	flag.StringVar(&config.Input, "input", "", "path to the delimited input file")
	flag.StringVar(&config.Query, "query", "", "RBQL query to compile and run")
	flag.StringVar(&config.Delim, "delim", ",", "field delimiter")
	flag.StringVar(&config.Policy, "policy", "quoted", "split policy: simple | quoted | monocolumn")
	flag.BoolVar(&config.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&config.Interactive, "interactive", false, "start the interactive TUI demo")

	flag.Parse()
	return config
}

func parsePolicy(name string) rbqlio.Policy {
	switch name {
	case "simple":
		return rbqlio.PolicySimple
	case "monocolumn":
		return rbqlio.PolicyMonocolumn
	default:
		return rbqlio.PolicyQuoted
	}
}

func showSplashScreen() {
	banner := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Render("RBQL — record-processing core demo")
	fmt.Println(banner)
}

func startInteractiveMode(config Configuration) error {
	policy := parsePolicy(config.Policy)
	m := newModel(config.Input, config.Delim, policy)
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}
