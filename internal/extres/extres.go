// Package extres drives an external symbolization helper (llvm-symbolizer or
// a compatible tool) over a line-based stdin/stdout protocol.
//
// Requests are "CODE <module> 0x<offset>" or "DATA <module> 0x<offset>", one
// per line. A CODE response is a sequence of frame pairs — a function-name
// line followed by a "file:line:column" line — terminated by a blank line.
// A DATA response is a symbol-name line, a "<start> <size>" line, and a
// blank line. "??" in any position means unknown.
//
// The helper is a trusted local process; there is no read deadline. A write
// or read failure marks the client broken and every later request degrades
// to the unavailable outcome.
package extres

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Frame is one resolved frame reported by the helper.
type Frame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// DataSym is a resolved data symbol reported by the helper.
type DataSym struct {
	Name  string
	Start uint64
	Size  uint64
}

// Client manages the helper subprocess. The process is started lazily on
// first use, or eagerly via Start before sandboxing takes process-spawn
// rights away.
type Client struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	broken  bool
	cmd     *exec.Cmd
	in      io.WriteCloser
	out     *bufio.Reader
}

// NewClient creates a client for the helper binary at path. The helper is
// not spawned until Start or the first request.
func NewClient(path string, logger zerolog.Logger) *Client {
	return &Client{
		path:   path,
		logger: logger.With().Str("component", "extres").Str("tool", path).Logger(),
	}
}

// Path returns the helper binary path.
func (c *Client) Path() string {
	return c.path
}

// Available reports whether the helper is usable: not yet failed, and either
// running or still eligible to be spawned.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.broken
}

// Start spawns the helper if it is not already running.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Client) startLocked() error {
	if c.started {
		if c.broken {
			return fmt.Errorf("symbolizer helper %s is not usable", c.path)
		}
		return nil
	}
	c.started = true

	cmd := exec.Command(c.path) // #nosec G204: path comes from operator config
	in, err := cmd.StdinPipe()
	if err != nil {
		c.broken = true
		return fmt.Errorf("failed to create helper stdin: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		c.broken = true
		return fmt.Errorf("failed to create helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.broken = true
		return fmt.Errorf("failed to start symbolizer helper %s: %w", c.path, err)
	}

	c.cmd = cmd
	c.in = in
	c.out = bufio.NewReader(out)

	c.logger.Debug().Int("helper_pid", cmd.Process.Pid).Msg("Symbolizer helper started")
	return nil
}

// SymbolizeCode asks the helper for the inlined frames of a module offset,
// innermost first. At most max frames are returned; the response is drained
// either way so the stream stays in sync.
func (c *Client) SymbolizeCode(module string, offset uint64, max int) ([]Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startLocked(); err != nil {
		return nil, err
	}
	if err := c.send("CODE", module, offset); err != nil {
		return nil, err
	}

	var frames []Frame
	for {
		function, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if function == "" {
			break
		}
		location, err := c.readLine()
		if err != nil {
			return nil, err
		}

		if len(frames) >= max || unknown(function) {
			continue
		}
		frame := Frame{Function: function}
		frame.File, frame.Line, frame.Column = parseLocation(location)
		frames = append(frames, frame)
	}

	return frames, nil
}

// SymbolizeData asks the helper for the data symbol containing a module
// offset.
func (c *Client) SymbolizeData(module string, offset uint64) (DataSym, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startLocked(); err != nil {
		return DataSym{}, err
	}
	if err := c.send("DATA", module, offset); err != nil {
		return DataSym{}, err
	}

	name, err := c.readLine()
	if err != nil {
		return DataSym{}, err
	}
	if name == "" {
		return DataSym{}, fmt.Errorf("helper returned no data symbol")
	}
	bounds, err := c.readLine()
	if err != nil {
		return DataSym{}, err
	}
	// Trailing blank line.
	if bounds != "" {
		if _, err := c.readLine(); err != nil {
			return DataSym{}, err
		}
	}

	if unknown(name) {
		return DataSym{}, fmt.Errorf("helper does not know data symbol at %s+0x%x", module, offset)
	}

	sym := DataSym{Name: name}
	fields := strings.Fields(bounds)
	if len(fields) == 2 {
		sym.Start, _ = strconv.ParseUint(fields[0], 0, 64)
		sym.Size, _ = strconv.ParseUint(fields[1], 0, 64)
	}
	return sym, nil
}

// Close terminates the helper process.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.in != nil {
		_ = c.in.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	c.broken = true
}

func (c *Client) send(kind, module string, offset uint64) error {
	if _, err := fmt.Fprintf(c.in, "%s %s 0x%x\n", kind, module, offset); err != nil {
		c.fail(err)
		return fmt.Errorf("failed to write to symbolizer helper: %w", err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.out.ReadString('\n')
	if err != nil {
		c.fail(err)
		return "", fmt.Errorf("failed to read from symbolizer helper: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) fail(err error) {
	if !c.broken {
		c.logger.Debug().Err(err).Msg("Symbolizer helper failed, disabling external resolution")
	}
	c.broken = true
}

// unknown reports whether the helper marked a field as unresolved.
func unknown(s string) bool {
	return s == "??" || s == "??:0" || s == ""
}

// parseLocation splits "file:line:column"; the file part may itself contain
// colons, so line and column are taken from the right.
func parseLocation(loc string) (string, int, int) {
	if unknown(loc) {
		return "", 0, 0
	}

	file := loc
	line, column := 0, 0

	if idx := strings.LastIndex(file, ":"); idx >= 0 {
		if v, err := strconv.Atoi(file[idx+1:]); err == nil {
			column = v
			file = file[:idx]
			lineParsed := false
			if idx := strings.LastIndex(file, ":"); idx >= 0 {
				if v, err := strconv.Atoi(file[idx+1:]); err == nil {
					line = v
					file = file[:idx]
					lineParsed = true
				}
			}
			if !lineParsed {
				// Only one numeric suffix: it is the line, not the column.
				line, column = column, 0
			}
		}
	}
	if unknown(file) {
		file = ""
	}
	return file, line, column
}
