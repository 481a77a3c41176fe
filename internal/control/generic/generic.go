// Package generic implements the in-container control plane's generic
// router (§4.4): shell command execution and a stateful notebook-kernel
// cell. Shell execution is a plain os/exec invocation; the notebook cell is
// a long-lived interpreter subprocess driven over a sentinel-delimited
// stdio protocol, modeled on the teacher's shared/docker/client.go Exec
// method — both demux two streams (stdout/stderr) off one attached process,
// the teacher's over a Docker exec attach, this one over a local pipe.
package generic

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sandboxrt/internal/model"
)

// Router serves the shell and notebook-cell tools.
type Router struct {
	workdir string
	log     zerolog.Logger

	mu      sync.Mutex
	kernel  *kernel
	kernelCmd []string
}

// New builds a Router. kernelCmd names the interpreter binary used for
// run_ipython_cell, e.g. []string{"python3"}; startKernel supplies the
// flags and driver script itself.
func New(workdir string, kernelCmd []string, log zerolog.Logger) *Router {
	return &Router{workdir: workdir, kernelCmd: kernelCmd, log: log}
}

// RunShellCommand executes command under a shell in workdir, returning the
// three-content envelope stdout/stderr/returncode the §4.4 generic router
// requires. isError iff stderr is non-empty.
func (r *Router) RunShellCommand(ctx context.Context, command string) (model.ToolResult, error) {
	if strings.TrimSpace(command) == "" {
		return model.ToolResult{}, model.ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	returncode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			returncode = exitErr.ExitCode()
		} else {
			return model.ToolResult{}, fmt.Errorf("generic: run shell command: %w", runErr)
		}
	}

	return model.ToolResult{
		Content: []model.ToolContent{
			{Type: "text", Text: stdout.String(), Description: "stdout"},
			{Type: "text", Text: stderr.String(), Description: "stderr"},
			{Type: "text", Text: strconv.Itoa(returncode), Description: "returncode"},
		},
		IsError: stderr.Len() > 0,
	}, nil
}

// RunIPythonCell executes code in the persistent kernel subprocess, starting
// it lazily on first use. State persists across cells because the
// subprocess is never restarted between calls.
func (r *Router) RunIPythonCell(ctx context.Context, code string) (model.ToolResult, error) {
	if strings.TrimSpace(code) == "" {
		return model.ToolResult{}, model.ErrEmptyCode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kernel == nil {
		k, err := startKernel(ctx, r.kernelCmd, r.workdir)
		if err != nil {
			return model.ToolResult{}, fmt.Errorf("generic: start kernel: %w", err)
		}
		r.kernel = k
	}

	stdout, stderr, err := r.kernel.runCell(code)
	if err != nil {
		// The subprocess died; drop it so the next call restarts a fresh one.
		r.kernel.close()
		r.kernel = nil
		return model.ToolResult{}, fmt.Errorf("generic: kernel cell: %w", err)
	}

	return model.ToolResult{
		Content: []model.ToolContent{
			{Type: "text", Text: stdout, Description: "stdout"},
			{Type: "text", Text: stderr, Description: "stderr"},
		},
		IsError: stderr != "",
	}, nil
}

// kernel wraps a long-lived interpreter subprocess and the sentinel-based
// stdout/stderr demux protocol.
type kernel struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdoutScan *bufio.Scanner
	stderrScan *bufio.Scanner
}

// driverScript is a tiny, fixed Python program that keeps a persistent
// globals namespace and execs one length-prefixed cell at a time,
// replacing a raw `python3 -i` REPL. The REPL approach was tried first but
// an interactive interpreter writes unbuffered `>>> `/`... ` prompts to
// stderr with no trailing newline, which glue onto the next real stderr
// line and make an exact-line sentinel match impossible; running
// non-interactively and framing each cell by byte length avoids prompt
// output entirely.
const driverScript = `
import sys, traceback
_g = {}
_end = "\x00__sandboxrt_cell_end__\x00"
while True:
    header = sys.stdin.readline()
    if header == "":
        break
    try:
        n = int(header.strip())
    except ValueError:
        continue
    code = sys.stdin.read(n)
    try:
        exec(compile(code, "<cell>", "exec"), _g)
    except Exception:
        traceback.print_exc()
    sys.stdout.write(_end + "\n")
    sys.stdout.flush()
    sys.stderr.write(_end + "\n")
    sys.stderr.flush()
`

// cellEndMarker is the fixed sentinel driverScript writes to stdout and
// stderr after every cell. Calls are serialized by Router.mu, so reusing a
// fixed marker across calls (rather than a fresh one per call) is safe.
const cellEndMarker = "\x00__sandboxrt_cell_end__\x00"

func startKernel(ctx context.Context, kernelCmd []string, workdir string) (*kernel, error) {
	if len(kernelCmd) == 0 {
		kernelCmd = []string{"python3"}
	}
	args := append(append([]string{}, kernelCmd[1:]...), "-u", "-c", driverScript)
	cmd := exec.Command(kernelCmd[0], args...)
	cmd.Dir = workdir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &kernel{
		cmd:        cmd,
		stdin:      stdin,
		stdoutScan: bufio.NewScanner(stdout),
		stderrScan: bufio.NewScanner(stderr),
	}, nil
}

// runCell frames code as a byte length followed by the code itself, so
// driverScript's reader never has to guess where one cell ends and the
// next begins, then reads stdout and stderr lines until each stream emits
// cellEndMarker, mirroring the teacher's Exec reader-goroutine-per-stream
// shape.
func (k *kernel) runCell(code string) (stdout, stderr string, err error) {
	if _, err := fmt.Fprintf(k.stdin, "%d\n", len(code)); err != nil {
		return "", "", err
	}
	if _, err := io.WriteString(k.stdin, code); err != nil {
		return "", "", err
	}

	var outBuf, errBuf strings.Builder
	outDone := make(chan error, 1)
	errDone := make(chan error, 1)

	go func() { outDone <- drainUntilSentinel(k.stdoutScan, cellEndMarker, &outBuf) }()
	go func() { errDone <- drainUntilSentinel(k.stderrScan, cellEndMarker, &errBuf) }()

	if err := <-outDone; err != nil {
		return "", "", err
	}
	if err := <-errDone; err != nil {
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

func drainUntilSentinel(scanner *bufio.Scanner, sentinel string, into *strings.Builder) error {
	for scanner.Scan() {
		line := scanner.Text()
		if line == sentinel {
			return nil
		}
		into.WriteString(line)
		into.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (k *kernel) close() {
	_ = k.stdin.Close()
	_ = k.cmd.Process.Kill()
	_ = k.cmd.Wait()
}
