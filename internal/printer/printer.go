// Package printer writes colored, human-facing CLI messages. Machine-readable
// output and logs go elsewhere.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Output destinations. Tests swap these for buffers.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Success prints a message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Fprint(Out, withPrefix("✓", fmt.Sprintf(format, a...)))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Println prints a plain line.
func Println(a ...any) {
	fmt.Fprintln(Out, a...)
}

// Warning prints a message in yellow with a warning prefix.
func Warning(format string, a ...any) {
	yellow.Fprint(Out, withPrefix("⚠️ ", fmt.Sprintf(format, a...)))
}

// Step prints a cyan arrow message, used for notices such as a resume point.
func Step(format string, a ...any) {
	cyan.Fprint(Out, withPrefix("→", fmt.Sprintf(format, a...)))
}

// Field prints an aligned "label: value" line.
func Field(label string, value any) {
	bold.Fprintf(Out, "%-18s", label+":")
	fmt.Fprintf(Out, " %v\n", value)
}

// Error prints title, explanation and suggestions to Err and returns an error
// carrying only the title, for cobra's SilenceErrors mode.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with extra key/value details, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(Err)
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

func withPrefix(prefix, msg string) string {
	if strings.HasPrefix(msg, prefix) {
		return msg
	}
	return prefix + " " + msg
}
