package main

import (
	"sync"

	"github.com/spf13/cobra"
)

// annotationStructuredLog marks commands whose fatal errors are reported
// through the structured logger instead of plain stderr. Interactive commands
// stay plain so prompts and errors read naturally on a terminal.
const annotationStructuredLog = "structured-log"

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	execContextMu sync.Mutex
	execContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	execContext = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	return execContext
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStructuredLog] == "true" {
			return true
		}
	}
	return false
}

func structuredLogAnnotation() map[string]string {
	return map[string]string{annotationStructuredLog: "true"}
}
