package main

import (
	"fmt"
	"os"
	"strings"

	"rbql/pkg/engine"
	"rbql/pkg/exprlang"
	"rbql/pkg/iface"
	"rbql/pkg/join"
	"rbql/pkg/logging"
	"rbql/pkg/rbqlio"
)

// runResult collects everything a single query execution produced, for
// either the one-shot CLI path or the interactive TUI to render.
type runResult struct {
	rows     []string
	warnings []string
	errKind  string
	errMsg   string
}

func (r *runResult) failed() bool { return r.errKind != "" }

// runQuery compiles query with pkg/exprlang and drives it through
// pkg/engine.Run against a CSV file at inputPath, blocking until the
// query's success or error callback fires exactly once (spec.md section
// 8, property 1) and returning the accumulated result.
func runQuery(query, inputPath, delim string, policy rbqlio.Policy) *runResult {
	cq, joinInfo, err := exprlang.Compile(query)
	if err != nil {
		return &runResult{errKind: "query parsing", errMsg: err.Error()}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return &runResult{errKind: "unexpected", errMsg: err.Error()}
	}
	defer f.Close()

	input := rbqlio.NewCSVInputIterator(f, delim, policy)

	var joinMapImpl iface.JoinMapImpl
	if joinInfo != nil {
		rhsFile, err := os.Open(joinInfo.Path)
		if err != nil {
			return &runResult{errKind: "unexpected", errMsg: err.Error()}
		}
		defer rhsFile.Close()

		rhsInput := rbqlio.NewCSVInputIterator(rhsFile, delim, policy)
		joinMapImpl = join.NewInMemoryMap(rhsInput, joinInfo.KeyFn)
	}

	var buf strings.Builder
	output := rbqlio.NewCSVOutputWriter(&buf, delim, policy)

	done := make(chan *runResult, 1)

	err = engine.Run(cq, input, joinMapImpl, output,
		func(warnings []string) {
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			if buf.Len() == 0 {
				lines = nil
			}
			done <- &runResult{rows: lines, warnings: warnings}
		},
		func(kind, message string) {
			logging.WithComponent("cmd.rbql").Warn("query failed", "kind", kind, "message", message)
			done <- &runResult{errKind: kind, errMsg: message}
		},
	)
	if err != nil {
		return &runResult{errKind: "unexpected", errMsg: err.Error()}
	}

	return <-done
}

func printResult(r *runResult) {
	if r.failed() {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", r.errKind, r.errMsg)
		return
	}
	for _, row := range r.rows {
		fmt.Println(row)
	}
	for _, w := range r.warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}
