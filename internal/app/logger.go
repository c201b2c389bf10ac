package app

import (
	"github.com/charlesng35/handoff/pkg/logger"
)

// ConfigureLogging initialises the global logger from server.log_level and server.log_format.
func ConfigureLogging(level, format string) error {
	return logger.Init(level, format)
}
