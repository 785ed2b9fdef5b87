// Package modlist enumerates the loaded modules of a process by parsing
// /proc/<pid>/maps. It is the module-identification half of symbolization:
// given a raw address it answers "which object file, at which file offset".
package modlist

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

// Module is one file-backed mapping range of a process.
type Module struct {
	Start      uint64
	End        uint64
	FileOffset uint64
	Perms      string
	Path       string
}

// Contains reports whether addr falls inside the mapping.
func (m Module) Contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End
}

// OffsetOf converts a runtime address into an offset within the mapped file.
func (m Module) OffsetOf(addr uint64) uint64 {
	return addr - m.Start + m.FileOffset
}

// Executable reports whether the mapping is executable.
func (m Module) Executable() bool {
	return strings.Contains(m.Perms, "x")
}

// List is a refreshable snapshot of a process's module mappings, sorted by
// start address for binary search.
type List struct {
	pid    int
	logger zerolog.Logger

	mu      sync.RWMutex
	modules []Module
}

// Self enumerates the calling process's own modules.
func Self(logger zerolog.Logger) (*List, error) {
	return ForProcess(os.Getpid(), logger)
}

// ForProcess enumerates the modules of the given process.
func ForProcess(pid int, logger zerolog.Logger) (*List, error) {
	l := &List{
		pid:    pid,
		logger: logger.With().Str("component", "modlist").Int("pid", pid).Logger(),
	}
	if err := l.Refresh(); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh re-reads the process's mappings. Existing snapshots handed out by
// Modules are unaffected.
func (l *List) Refresh() error {
	modules, err := readMaps(l.pid)
	if err != nil {
		return err
	}

	// Deleted executables show up as "/path (deleted)"; resolve the live
	// path through the process's exe link where possible.
	if exe := exePath(l.pid); exe != "" {
		for i := range modules {
			if strings.HasSuffix(modules[i].Path, " (deleted)") {
				modules[i].Path = exe
			}
		}
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Start < modules[j].Start
	})

	l.mu.Lock()
	l.modules = modules
	l.mu.Unlock()

	l.logger.Debug().Int("module_count", len(modules)).Msg("Module list refreshed")
	return nil
}

// Find returns the module containing addr.
func (l *List) Find(addr uint64) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Largest start <= addr, same shape as the kernel symbol lookup.
	idx := sort.Search(len(l.modules), func(i int) bool {
		return l.modules[i].Start > addr
	})
	if idx == 0 {
		return Module{}, false
	}
	m := l.modules[idx-1]
	if !m.Contains(addr) {
		return Module{}, false
	}
	return m, true
}

// Modules returns a copy of the current snapshot.
func (l *List) Modules() []Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Module, len(l.modules))
	copy(out, l.modules)
	return out
}

// exePath resolves the process's executable path, or "" if unavailable.
func exePath(pid int) string {
	p, err := process.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return ""
	}
	exe, err := p.Exe()
	if err != nil {
		return ""
	}
	return exe
}

// readMaps parses /proc/<pid>/maps into file-backed module ranges.
// Format: address perms offset dev inode pathname
// Example: 555555554000-555555556000 r-xp 00000000 08:01 123456 /path/to/binary
func readMaps(pid int) ([]Module, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path) // #nosec G304: pid is an int
	if err != nil {
		return nil, fmt.Errorf("failed to read maps for pid %d: %w", pid, err)
	}
	defer f.Close() // nolint:errcheck

	var modules []Module
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}

		// Skip anonymous and pseudo mappings ([heap], [stack], [vdso], ...).
		mapped := strings.Join(fields[5:], " ")
		if !strings.HasPrefix(mapped, "/") {
			continue
		}

		addrParts := strings.Split(fields[0], "-")
		if len(addrParts) != 2 {
			continue
		}

		var start, end, offset uint64
		if _, err := fmt.Sscanf(addrParts[0], "%x", &start); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(addrParts[1], "%x", &end); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(fields[2], "%x", &offset); err != nil {
			continue
		}

		modules = append(modules, Module{
			Start:      start,
			End:        end,
			FileOffset: offset,
			Perms:      fields[1],
			Path:       mapped,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan maps for pid %d: %w", pid, err)
	}

	return modules, nil
}
