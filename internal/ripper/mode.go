package ripper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode governs how the root directory is treated when a rip starts.
type Mode int

const (
	// CreateNew requires the root to be missing or empty.
	CreateNew Mode = iota
	// Create empties an existing root.
	Create
	// Update requires the root to exist and only refreshes stale files.
	Update
	// UpdateOrCreate updates an existing root or creates a new one.
	UpdateOrCreate
	// Truncate empties the root, which must already exist.
	Truncate
)

var modeNames = map[Mode]string{
	CreateNew:      "create-new",
	Create:         "create",
	Update:         "update",
	UpdateOrCreate: "update-or-create",
	Truncate:       "truncate",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the dashed names, ignoring case, dashes and underscores.
func ParseMode(s string) (Mode, error) {
	key := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for m, name := range modeNames {
		if strings.ReplaceAll(name, "-", "") == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// overwrites reports whether every transfer replaces the local file.
func (m Mode) overwrites() bool {
	return m == CreateNew || m == Create || m == Truncate
}

// prepareRoot checks the mode precondition and readies the directory.
// Nothing is modified when the precondition fails.
func prepareRoot(root string, m Mode) error {
	info, err := os.Stat(root)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat root %s: %w", root, err)
	}
	if exists && !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}

	switch m {
	case CreateNew:
		if exists {
			entries, err := os.ReadDir(root)
			if err != nil {
				return fmt.Errorf("failed to read root %s: %w", root, err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("%w: %s", ErrRootExists, root)
			}
		}
	case Create:
		if exists {
			if err := clearDir(root); err != nil {
				return err
			}
		}
	case Update:
		if !exists {
			return fmt.Errorf("%w: %s", ErrRootMissing, root)
		}
	case UpdateOrCreate:
	case Truncate:
		if !exists {
			return fmt.Errorf("%w: %s", ErrRootMissing, root)
		}
		if err := clearDir(root); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %v", ErrInvalidMode, m)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create root %s: %w", root, err)
	}
	return nil
}

// clearDir removes the contents of dir but keeps dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read root %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear root %s: %w", dir, err)
		}
	}
	return nil
}
