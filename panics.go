package emitter

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
)

// PanicLogger reports a panic recovered outside of a handler call.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[FATAL] recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v\n", err))
	sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		// sort keys for consistent output
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	log.Print(sb.String())
}

// recoverHandlerPanic turns a handler panic into a HANDLER_PANIC error
// stored in errp. It must be deferred directly.
func recoverHandlerPanic(handler string, action Action, errp *error) {
	r := recover()
	if r == nil {
		return
	}

	actionType := ""
	if action != nil {
		actionType = action.Type()
	}

	var source error
	if e, ok := r.(error); ok {
		source = e
	}

	*errp = newError(ErrHandlerPanic,
		fmt.Sprintf("handler %s panicked while handling `%s`: %v", handler, actionType, r),
		source,
		map[string]any{
			"handler": handler,
			"type":    actionType,
			"stack":   string(captureStack()),
		})
}

func captureStack() []byte {
	fullStack := make([]byte, 8096)
	n := runtime.Stack(fullStack, false)
	return cleanStackTrace(fullStack[:n])
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// we find the index after the panic line
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// then remove everything before it, including the panic() call line
	// and its file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
