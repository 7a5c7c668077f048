// Package platform isolates OS-specific process and shell plumbing.
package platform

import (
	"os"
	"path/filepath"

	"clash-launcher/internal/constants"
)

// GetConfigDir returns the directory that holds config.yaml and the update marker.
func GetConfigDir(workDir string) string {
	return filepath.Join(workDir, constants.ConfigDirName)
}

// GetEngineDir returns the directory the engine binary is searched in.
func GetEngineDir(baseDir string) string {
	return filepath.Join(baseDir, constants.EngineDirName)
}

// GetLogsDir returns the path to the logs directory.
func GetLogsDir(workDir string) string {
	return filepath.Join(workDir, constants.LogsDirName)
}

// EnsureDirectories creates the config and logs directories.
func EnsureDirectories(workDir string) error {
	for _, dir := range []string{GetConfigDir(workDir), GetLogsDir(workDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
