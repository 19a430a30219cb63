package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/dcheck/errors"
)

// printIntegrityBanner reports an integrity violation loudly. Retrying will
// hit the same wall, so the operator is sent to look at the files instead.
func printIntegrityBanner(w io.Writer, err error) {
	var body strings.Builder
	body.WriteString(err.Error())
	body.WriteString("\n\nDo not simply retry: recorded history and the stored artifacts disagree.")
	for _, hint := range errors.GetAllHints(err) {
		body.WriteString("\n")
		body.WriteString(hint)
	}

	box := pterm.DefaultBox.
		WithTitle(pterm.Red(" INTEGRITY VIOLATION ")).
		WithBoxStyle(pterm.NewStyle(pterm.FgRed)).
		Sprint(body.String())
	fmt.Fprintln(w, box)
}
