package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/cmericli/claude-remote/internal/tmux"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The server trusts its private network boundary.
	CheckOrigin: func(*http.Request) bool { return true },
}

// resizeMessage is the out-of-band control frame carried as a JSON text
// message on the terminal socket. Binary frames are raw terminal bytes.
type resizeMessage struct {
	Type string `json:"type"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// handleTerminal bridges a WebSocket to a mux session's pseudo-terminal.
// Closing the socket detaches the client; the mux session keeps running.
func (s *Server) handleTerminal(c echo.Context) error {
	name := c.Param("name")

	rows := uint16(intParam(c, "rows", 24))
	cols := uint16(intParam(c, "cols", 80))

	pipe, err := s.mux.Attach(name, rows, cols)
	if err != nil {
		if errors.Is(err, tmux.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		return s.internalError(c, "attach", err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		_ = pipe.Close()
		return err
	}

	done := make(chan struct{})

	// Terminal -> client.
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := pipe.Read(buf)
			if err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return
			}
		}
	}()

	// Client -> terminal, with resize frames sidestepped from the data
	// stream.
readLoop:
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.TextMessage:
			var msg resizeMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "resize" {
				if err := pipe.Resize(msg.Rows, msg.Cols); err != nil {
					log.Printf("server: resize %s: %v", name, err)
				}
				continue
			}
			if _, err := pipe.Write(data); err != nil {
				break readLoop
			}
		case websocket.BinaryMessage:
			if _, err := pipe.Write(data); err != nil {
				break readLoop
			}
		}
	}

	_ = pipe.Close()
	_ = ws.Close()
	<-done
	return nil
}
