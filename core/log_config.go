package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// init initializes the logging configuration based on the DEBUG_ANNPREP environment variable.
func init() {
	ConfigureLogging(os.Getenv("DEBUG_ANNPREP"))
}

// ConfigureLogging sets the global zerolog level from a DEBUG_ANNPREP style value:
// "off" or "0" disables logging, "full" enables debug output, anything else means info.
func ConfigureLogging(value string) {
	debugMode := strings.TrimSpace(strings.ToLower(value))

	if debugMode == "off" || debugMode == "0" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	} else if debugMode == "full" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
