package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout gets ANSI colors. KG_COLOR
// (always, never or auto) wins over NO_COLOR, CLICOLOR_FORCE and CLICOLOR;
// otherwise color follows whether stdout is a terminal.
func ShouldUseColor() bool {
	return colorWanted(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

func colorWanted(getenv func(string) string, isTTY func() bool) bool {
	switch strings.ToLower(strings.TrimSpace(getenv("KG_COLOR"))) {
	case "always":
		return true
	case "never":
		return false
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return isTTY()
}
