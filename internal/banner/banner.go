package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
 _                 _           _ _
| | ___   __ _  __| | ___ __ _| | |
| |/ _ \ / _` + "`" + ` |/ _` + "`" + ` |/ __/ _` + "`" + ` | | |
| | (_) | (_| | (_| | (_| (_| | | |
|_|\___/ \__,_|\__,_|\___\__,_|_|_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is a single label/value pair shown under the logo.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the run configuration.
func Print(config []ConfigLine) {
	fmt.Println(logo)

	// Align values on the longest label
	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}
	for _, c := range config {
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Printf("  %s%s : %s\n", c.Label, padding, c.Value)
	}

	fmt.Println(footer)
}
