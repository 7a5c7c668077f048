package debuglog

import (
	"log"
	"os"
	"path/filepath"
)

// maxLogFileSize is the size after which a log file is rotated to .old on open.
const maxLogFileSize = 2 * 1024 * 1024

// RotateIfLarge renames logPath to logPath+".old" when it exceeds maxLogFileSize.
func RotateIfLarge(logPath string) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}
	if info.Size() <= maxLogFileSize {
		return
	}
	oldPath := logPath + ".old"
	_ = os.Remove(oldPath)
	if err := os.Rename(logPath, oldPath); err != nil {
		log.Printf("RotateIfLarge: failed to rotate %s: %v", logPath, err)
	}
}

// OpenLogFile rotates and opens logPath in append mode and makes it the
// output of the standard logger. The caller owns the returned file.
func OpenLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	RotateIfLarge(logPath)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return f, nil
}
