package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vortexdex/dexproxy/events"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/log"
)

// Subscription channels exposed on the websocket surface.
var wsChannels = map[string]bool{
	lifecycle.OrderEventChannel: true,
	"TRADE":                     true,
}

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsRequest is a JSON-RPC 2.0 subscribe or unsubscribe message.
type wsRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Method  string   `json:"method"`
	Params  wsParams `json:"params"`
}

type wsParams struct {
	Channel string `json:"channel"`
}

type wsResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Result  any      `json:"result,omitempty"`
	Error   *wsError `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleWebsocket handles GET /public/ws. Each connection may subscribe to
// any of the notification channels; subscriptions are dropped when the
// connection closes.
func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	sub := events.NewWSSubscriber(conn)
	defer func() {
		a.events.UnsubscribeAll(sub)
		if err := sub.Close(); err != nil {
			log.Debugw("websocket close", "error", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				if err := sub.Ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("websocket read failed", "error", err)
			}
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			a.wsReply(sub, nil, nil, &wsError{Code: -32700, Message: "parse error"})
			continue
		}
		if !wsChannels[req.Params.Channel] {
			a.wsReply(sub, req.ID, nil, &wsError{Code: -32602, Message: "unknown channel"})
			continue
		}
		switch req.Method {
		case "subscribe":
			a.events.Subscribe(req.Params.Channel, sub)
			a.wsReply(sub, req.ID, true, nil)
		case "unsubscribe":
			a.events.Unsubscribe(req.Params.Channel, sub)
			a.wsReply(sub, req.ID, true, nil)
		default:
			a.wsReply(sub, req.ID, nil, &wsError{Code: -32601, Message: "method not found"})
		}
	}
}

func (a *API) wsReply(sub *events.WSSubscriber, id, result any, wserr *wsError) {
	if err := sub.Send(wsResponse{JSONRPC: "2.0", ID: id, Result: result, Error: wserr}); err != nil {
		log.Debugw("websocket reply failed", "error", err)
	}
}
