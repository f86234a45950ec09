package companion

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// processInfo is one running process as reported by the proc filesystem.
type processInfo struct {
	PID     int
	Name    string
	Cmdline string
}

// scanProcesses lists running processes under root (normally /proc).
// Entries that disappear mid-scan are skipped silently.
func scanProcesses(root string) ([]processInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	procs := make([]processInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		name, err := readComm(filepath.Join(root, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		cmdline, err := readCmdline(filepath.Join(root, entry.Name(), "cmdline"))
		if err != nil {
			continue
		}
		procs = append(procs, processInfo{PID: pid, Name: name, Cmdline: cmdline})
	}
	return procs, nil
}

func readComm(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// readCmdline joins the NUL-separated argument vector with spaces.
func readCmdline(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	raw = bytes.TrimRight(raw, "\x00")
	return string(bytes.ReplaceAll(raw, []byte{0}, []byte{' '})), nil
}
