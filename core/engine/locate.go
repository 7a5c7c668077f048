package engine

import (
	"os"
	"path/filepath"

	"clash-launcher/internal/platform"
)

// Candidates returns the executable search order: the bundled resource
// directory, then the working directory, then the install directory. Each
// location holds the binary under clash/.
func Candidates(opts Options) []string {
	name := opts.ExecutableName
	if name == "" {
		name = platform.GetExecutableName()
	}
	var out []string
	for _, base := range []string{opts.ResourceDir, opts.WorkDir, opts.InstallDir} {
		if base == "" {
			continue
		}
		out = append(out, filepath.Join(platform.GetEngineDir(base), name))
	}
	return out
}

// Locate returns the first candidate that is a regular file.
func Locate(opts Options) (string, error) {
	candidates := Candidates(opts)
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", &NotFoundError{Kind: ErrExecutableNotFound, Searched: candidates}
}

// InstallDir returns the directory of the running launcher binary.
func InstallDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
