package terminal

import (
	"os"
	"strings"
)

// colorTerminals lists TERM values (or prefixes) that are known to support
// basic terminal colors.
var colorTerminals = []string{
	"xterm",
	"screen",
	"tmux",
	"rxvt",
	"vt100",
	"vt220",
	"ansi",
	"linux",
	"cygwin",
	"putty",
}

// colorPreference reports the color setting requested by flags or by CLICOLOR_FORCE and
// NO_COLOR. explicit is false when the user expressed no preference.
func colorPreference(opts Options) (enabled, explicit bool) {
	switch {
	case opts.ForceColor:
		return true, true
	case opts.DisableColor:
		return false, true
	}

	// CLICOLOR_FORCE=0 is not a preference
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && isTruthy(force) {
		return true, true
	}

	// NO_COLOR counts even when empty
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false, true
	}
	return false, false
}

// termSupportsColor checks TERM. Unknown terminals get no color.
func termSupportsColor() bool {
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	if term == "" || term == "dumb" {
		return false
	}
	for _, colorTerm := range colorTerminals {
		if term == colorTerm || strings.HasPrefix(term, colorTerm+"-") {
			return true
		}
	}
	return false
}
