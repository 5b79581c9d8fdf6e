package logging

import "path/filepath"

// LogFileName is the default log file name inside the data directory.
const LogFileName = "vaultscope.log"

// DefaultLogPath returns the log file path under the given data
// directory. An empty dataDir disables file logging.
func DefaultLogPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "logs", LogFileName)
}
