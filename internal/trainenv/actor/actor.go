// Package actor isolates one training-environment instance in its own
// subprocess, communicating over line-delimited JSON-RPC on stdin/stdout.
// This is the training side's analog of internal/control/generic's
// sentinel-delimited kernel protocol — same "drive an external process over
// a text pipe" shape, simplified here to one JSON object per line since the
// actor protocol is request/response rather than free-form stdout capture.
package actor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Request is one call sent to the actor subprocess.
type Request struct {
	Method string          `json:"method"` // init | step | evaluate | get_info | close
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the actor subprocess's reply to one Request.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Actor owns one isolated subprocess and serializes calls to it: "one actor
// processes its own calls sequentially, but different actors run
// concurrently" (§5).
type Actor struct {
	cmd    *exec.Cmd
	stdin  *json.Encoder
	stdout *bufio.Scanner

	mu sync.Mutex
}

// Start launches command (e.g. []string{"python3", "-u", "appworld_actor.py"})
// with env appended to the current environment, one subprocess per instance.
func Start(command []string, env []string, extraArgs ...string) (*Actor, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("actor: empty command")
	}
	args := append(append([]string{}, command[1:]...), extraArgs...)
	cmd := exec.Command(command[0], args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("actor: start %v: %w", command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &Actor{cmd: cmd, stdin: json.NewEncoder(stdin), stdout: scanner}, nil
}

// Call sends method/params and blocks for the matching response. Calls to
// the same Actor are serialized by mu.
func (a *Actor) Call(method string, params any) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("actor: marshal params: %w", err)
	}
	if err := a.stdin.Encode(Request{Method: method, Params: raw}); err != nil {
		return nil, fmt.Errorf("actor: write request: %w", err)
	}
	if !a.stdout.Scan() {
		if err := a.stdout.Err(); err != nil {
			return nil, fmt.Errorf("actor: read response: %w", err)
		}
		return nil, fmt.Errorf("actor: subprocess closed stdout")
	}
	var resp Response
	if err := json.Unmarshal(a.stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("actor: decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("actor: %s: %s", method, resp.Error)
	}
	return resp.Result, nil
}

// Close calls the "close" method, ignoring its result, then kills the
// subprocess. "The reaper ignores errors from per-instance close" (§5).
func (a *Actor) Close() {
	_, _ = a.Call("close", nil)
	_ = a.cmd.Process.Kill()
	_ = a.cmd.Wait()
}
