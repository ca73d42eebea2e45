package commands

import (
	"os"

	"github.com/fatih/color"
)

func init() {
	// NO_COLOR disables colour; color already checks for a terminal.
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

var (
	success = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
)
