// Command ws_bridge lets browser renderers talk to a stdio process, usually
// `genui -acp`. Each websocket connection gets its own subprocess: websocket
// messages are written to its stdin one per line, stdout lines are sent back
// unchanged and stderr lines are wrapped as {"type":"stderr","data":...}.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("listen", ":8080", "Address to listen on")
	path := flag.String("path", "/ws", "Websocket path")
	flag.Parse()

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		logger.Fatal("usage: ws_bridge [-listen addr] [-path /ws] command [args...]")
	}

	http.Handle(*path, handleWS(cmdArgs, logger))
	logger.Info("WebSocket server running", zap.String("url", "ws://localhost"+*addr+*path), zap.Strings("command", cmdArgs))
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// wsWriter serializes writes to one connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func handleWS(cmdArgs []string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.With(zap.String("remote", r.RemoteAddr))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Upgrade error", zap.Error(err))
			return
		}
		defer conn.Close()
		out := &wsWriter{conn: conn}

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Error("Error getting stdin", zap.Error(err))
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Error("Error getting stdout", zap.Error(err))
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Error("Error getting stderr", zap.Error(err))
			return
		}
		if err := cmd.Start(); err != nil {
			log.Error("Error starting subprocess", zap.Error(err))
			return
		}
		log.Info("Subprocess started", zap.Int("pid", cmd.Process.Pid))
		defer func() {
			stdin.Close()
			if err := cmd.Wait(); err != nil {
				log.Info("Subprocess exited", zap.Error(err))
			}
		}()

		// Pipe subprocess stdout → WebSocket
		go func() {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
			for scanner.Scan() {
				if err := out.write(scanner.Bytes()); err != nil {
					log.Warn("WS write error", zap.Error(err))
					return
				}
			}
		}()

		// Pipe subprocess stderr → WebSocket
		go func() {
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				msg, _ := json.Marshal(map[string]string{"type": "stderr", "data": scanner.Text()})
				if err := out.write(msg); err != nil {
					log.Warn("WS write error", zap.Error(err))
					return
				}
			}
		}()

		// Pipe WebSocket messages → subprocess stdin
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Debug("WS read ended", zap.Error(err))
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Warn("Stdin write error", zap.Error(err))
				return
			}
		}
	}
}
