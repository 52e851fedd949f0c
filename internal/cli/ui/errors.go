package ui

import (
	"fmt"
	"strings"
)

// FormatError renders an error for the terminal: a styled "Error:" line
// followed by an optional "Try:" block listing concrete next commands.
func FormatError(msg string, suggestions ...string) string {
	var b strings.Builder

	b.WriteString(StyleBoldRed.Render("Error:"))
	b.WriteString(" ")
	b.WriteString(msg)
	b.WriteString("\n")

	if len(suggestions) == 0 {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(StyleHint.Render("  Try:"))
	b.WriteString("\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "    %s %s\n", StyleHint.Render(SymbolArrow), s)
	}
	return b.String()
}
