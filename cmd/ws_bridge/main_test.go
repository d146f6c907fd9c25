package main

import (
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dial(t *testing.T, cmdArgs ...string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(handleWS(cmdArgs, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestBridgeEchoesStdout(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	conn := dial(t, "cat")

	line := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"note":"quotes \" and \\ survive"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, line, string(got))
}

func TestBridgeWrapsStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	conn := dial(t, "sh", "-c", `echo 'bad "thing"' >&2; cat >/dev/null`)

	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stderr","data":"bad \"thing\""}`, string(got))
}
