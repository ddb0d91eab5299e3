package playback

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot accumulates the property values mpv reported for the current file.
// Nil fields have not been observed since the last reset. Fields are replaced,
// never mutated in place, so copies can be handed to other goroutines.
type Snapshot struct {
	Path             *string
	WorkingDirectory *string
	Paused           *bool
	PercentPos       *float64
	Duration         *float64
	// FileStart is set the first time the file is seen unpaused.
	FileStart *time.Time
	// SessionID identifies one file playback in logs and history.
	SessionID string
}

// Complete reports whether every property needed for a sync has been seen.
func (s Snapshot) Complete() bool {
	return s.Path != nil &&
		s.Paused != nil &&
		s.PercentPos != nil &&
		s.Duration != nil &&
		s.WorkingDirectory != nil
}

// ResolvedPath returns the reported path made absolute against the working
// directory. It is empty until Path is known.
func (s Snapshot) ResolvedPath() string {
	if s.Path == nil {
		return ""
	}
	wd := ""
	if s.WorkingDirectory != nil {
		wd = *s.WorkingDirectory
	}
	return ResolvePath(*s.Path, wd)
}

// ResolvePath joins relative paths with workingDir. Absolute paths and URLs
// are returned unchanged; mpv started from a terminal reports the argument
// as given.
func ResolvePath(path, workingDir string) string {
	if IsURL(path) || filepath.IsAbs(path) || workingDir == "" {
		return path
	}
	return filepath.Join(workingDir, path)
}

// IsURL reports whether path carries a URL scheme. Single-letter schemes are
// Windows drive letters, not URLs.
func IsURL(path string) bool {
	u, err := url.Parse(path)
	return err == nil && len(u.Scheme) > 1
}

// DirFilter decides which paths are synced.
type DirFilter struct {
	// Monitored prefixes; empty means everything.
	Monitored []string
	// Excluded prefixes always win over Monitored.
	Excluded []string
}

// Eligible reports whether path should be synced.
func (f DirFilter) Eligible(path string) bool {
	ok := len(f.Monitored) == 0
	for _, dir := range f.Monitored {
		if strings.HasPrefix(path, dir) {
			ok = true
			break
		}
	}
	for _, dir := range f.Excluded {
		if strings.HasPrefix(path, dir) {
			return false
		}
	}
	return ok
}
