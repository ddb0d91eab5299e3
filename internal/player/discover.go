package player

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
)

// AutoDetect asks ResolveIPCPath to read the path from mpv.conf.
const AutoDetect = "auto-detect"

// ErrNoIPCPath is returned when mpv.conf has no input-ipc-server entry.
var ErrNoIPCPath = errors.New("no input-ipc-server=<path> entry in mpv.conf")

// ResolveIPCPath returns configured unless it is empty or AutoDetect, in which
// case the path is discovered from the mpv config file.
func ResolveIPCPath(configured, mpvConfig string) (string, error) {
	if configured != "" && configured != AutoDetect {
		return configured, nil
	}
	return DiscoverIPCPath(mpvConfig)
}

// DefaultMPVConfigPath returns the platform location of mpv.conf.
func DefaultMPVConfigPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "mpv", "mpv.conf")
	}
	return filepath.Join(xdg.ConfigHome, "mpv", "mpv.conf")
}

// DiscoverIPCPath scans mpvConfig (or the default mpv.conf) for an
// input-ipc-server entry.
func DiscoverIPCPath(mpvConfig string) (string, error) {
	if mpvConfig == "" {
		mpvConfig = DefaultMPVConfigPath()
	}
	f, err := os.Open(mpvConfig)
	if err != nil {
		return "", fmt.Errorf("open mpv config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "input-ipc-server" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		return expandHome(value), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read mpv config: %w", err)
	}
	return "", fmt.Errorf("%s: %w", mpvConfig, ErrNoIPCPath)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
