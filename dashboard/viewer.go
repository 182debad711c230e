package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait        = 1 * time.Second
	pubResolution    = 100 * time.Millisecond
	pingResolution   = 500 * time.Millisecond
	pongWait         = 2 * pingResolution
	closeGracePeriod = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The dashboard is read-only and served same-origin; no cross-origin
	// browsers need to be turned away here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWebsocket upgrades the request and streams snapshots to it until
// the connection drops or the dashboard is at capacity.
func (d *Dashboard) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("dashboard: websocket upgrade failed")
		return
	}

	updates, release, ok := d.hub.acquire()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "dashboard at capacity"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer release()

	v := &viewer{conn: conn, updates: updates}
	defer v.close()
	if err := v.sync(r.Context()); err != nil && err != errViewerClosed {
		log.Debug().Err(err).Msg("dashboard: viewer disconnected")
	}
}

// viewer streams one websocket connection's worth of snapshot pushes and
// keepalive pings, mirroring a browser's lifetime: connect, stream until
// the tab closes or goes quiet, disconnect.
type viewer struct {
	conn    *websocket.Conn
	updates <-chan Snapshot
}

func (v *viewer) sync(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.readPump(ctx) })
	g.Go(func() error { return v.writePump(ctx) })
	return g.Wait()
}

// readPump's only job is to keep calling ReadMessage so gorilla/websocket
// dispatches pong control frames to the handler installed in writePump.
// The dashboard never expects application messages from a viewer; any
// that arrive are read and discarded, and a read error ends the connection.
func (v *viewer) readPump(ctx context.Context) error {
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if isClosure(err) {
				return errViewerClosed
			}
			return err
		}
	}
}

func (v *viewer) writePump(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	v.conn.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	ticker := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	lastPublish := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pong:
			lastPong = time.Now()
		case <-ticker:
			if time.Since(lastPong) > pongWait {
				return errPongTimeout
			}
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case snap := <-v.updates:
			if time.Since(lastPublish) < pubResolution {
				continue
			}
			lastPublish = time.Now()
			if err := v.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := v.conn.WriteJSON(snap); err != nil {
				return err
			}
		}
	}
}

func (v *viewer) close() {
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = v.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.AfterFunc(closeGracePeriod, func() { v.conn.Close() })
}

var (
	errPongTimeout  = &websocketError{"viewer missed too many pongs"}
	errViewerClosed = &websocketError{"viewer closed the connection"}
)

type websocketError struct{ msg string }

func (e *websocketError) Error() string { return e.msg }

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
