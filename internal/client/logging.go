package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/okian/pitwall/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends the global logger to a file so it does not interleave
// with the transcript on stdout. An empty path gets a timestamped name.
func SetupLogging(logFile string) (string, error) {
	if logFile == "" {
		logFile = "pitwall_client_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(file, "text"); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return logFile, nil
}
