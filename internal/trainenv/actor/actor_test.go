package actor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// echoActorScript reads one JSON-RPC request per line and replies with a
// result that echoes the method name and params, standing in for a real
// environment actor without depending on any sandboxrt_envs package.
const echoActorScript = `
import sys, json
for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    if req.get("method") == "close":
        print(json.dumps({"result": None}))
        sys.stdout.flush()
        break
    resp = {"result": {"method": req.get("method"), "params": req.get("params")}}
    print(json.dumps(resp))
    sys.stdout.flush()
`

func startEchoActor(t *testing.T) *Actor {
	t.Helper()
	act, err := Start([]string{"python3", "-u", "-c", echoActorScript}, nil)
	require.NoError(t, err)
	return act
}

func TestCallRoundTripsMethodAndParams(t *testing.T) {
	act := startEchoActor(t)
	defer act.Close()

	result, err := act.Call("step", map[string]any{"action": "noop"})
	require.NoError(t, err)

	var decoded struct {
		Method string `json:"method"`
		Params struct {
			Action string `json:"action"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Equal(t, "step", decoded.Method)
	require.Equal(t, "noop", decoded.Params.Action)
}

func TestStartWithEmptyCommandFails(t *testing.T) {
	_, err := Start(nil, nil)
	require.Error(t, err)
}
