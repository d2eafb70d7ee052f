package webui

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/tobert/perfdash/internal/views"
)

const wsKeepalive = 15 * time.Second

// wsControl is a client message on the transaction stream.
type wsControl struct {
	ShowTransactions *string `json:"showTransactions,omitempty"`
	Paused           *bool   `json:"paused,omitempty"`
}

// handleWebSocket streams the transaction list of ?transaction= in ?org=
// whenever the event store changes. Other query parameters are the page
// parameters.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if err := s.dash.CheckOrg(params.Get("org")); err != nil {
		writeError(w, err)
		return
	}
	params.Del("org")
	if _, err := s.dash.TransactionList(params.Get("transaction"), params); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	notifyCh, unsubscribe := s.dash.Store().Subscribe()
	defer unsubscribe()

	controlCh := make(chan wsControl, 4)
	go func() {
		defer close(controlCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var c wsControl
			if json.Unmarshal(data, &c) == nil {
				select {
				case controlCh <- c:
				default:
				}
			}
		}
	}()

	paused := false
	if !s.sendTransactions(ctx, conn, params) {
		return
	}

	keepalive := time.NewTicker(wsKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case c, ok := <-controlCh:
			if !ok {
				return
			}
			if c.Paused != nil {
				paused = *c.Paused
			}
			if c.ShowTransactions != nil {
				params = cloneParams(params)
				params.Set(views.ParamShowTransactions, *c.ShowTransactions)
			}
			if !paused && !s.sendTransactions(ctx, conn, params) {
				return
			}

		case <-notifyCh:
			if paused {
				continue
			}
			if !s.sendTransactions(ctx, conn, params) {
				return
			}

		case <-keepalive.C:
			if paused {
				continue
			}
			if !s.sendTransactions(ctx, conn, params) {
				return
			}
		}
	}
}

// sendTransactions renders and writes one update. It reports false when the
// connection is gone.
func (s *Server) sendTransactions(ctx context.Context, conn *websocket.Conn, params url.Values) bool {
	page, err := s.dash.Transactions(ctx, params.Get("transaction"), params)
	if err != nil {
		log.Printf("⚠️  webui: transaction stream: %v", err)
		return false
	}
	data, err := json.Marshal(page)
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data) == nil
}

func cloneParams(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
