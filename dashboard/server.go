package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog/log"

	"groundctl/statemachine"
)

// snapshotInterval is how often the dashboard samples the state machine
// for its websocket push; the /api routes build a fresh snapshot on every
// request. Independent of any
// board's scheduler cadence; a human staring at a browser tab doesn't
// need sub-100ms updates.
const snapshotInterval = 250 * time.Millisecond

// Dashboard serves the read-only HTTP+websocket mirror described above.
// It never holds a reference the command router also mutates through;
// every field it reads is already safe for concurrent readers.
type Dashboard struct {
	addr    string
	machine *statemachine.Machine
	hub     *hub
	srv     *http.Server
}

// New builds a Dashboard listening on addr. It does not start serving
// until Run is called.
func New(addr string, machine *statemachine.Machine) *Dashboard {
	d := &Dashboard{addr: addr, machine: machine}

	r := mux.NewRouter()
	r.HandleFunc("/", d.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/boards", d.serveBoards).Methods(http.MethodGet)
	r.HandleFunc("/api/hotfire", d.serveHotfire).Methods(http.MethodGet)
	r.HandleFunc("/ws", d.serveWebsocket)

	d.srv = &http.Server{Addr: addr, Handler: r}
	return d
}

// Run starts the HTTP listener and the snapshot publish loop, blocking
// until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	d.hub = newHub(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", d.addr).Msg("dashboard: listening")
		if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	ticker := channerics.NewTicker(ctx.Done(), snapshotInterval)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
			defer cancel()
			_ = d.srv.Shutdown(shutdownCtx)
			return ctx.Err()
		case err := <-errc:
			return err
		case <-ticker:
			d.hub.Publish(buildSnapshot(d.machine))
		}
	}
}

func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(indexHTML))
}

func (d *Dashboard) serveBoards(w http.ResponseWriter, r *http.Request) {
	snap := buildSnapshot(d.machine)
	writeJSON(w, map[string]any{
		"boards":         snap.Boards,
		"desired_states": snap.DesiredStates,
	})
}

func (d *Dashboard) serveHotfire(w http.ResponseWriter, r *http.Request) {
	snap := buildSnapshot(d.machine)
	writeJSON(w, map[string]any{
		"state":                  snap.State,
		"time_since_statechange": snap.TimeSinceStatechange,
		"t_time":                 snap.TTime,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("dashboard: encoding response failed")
	}
}

// indexHTML is a single static page; it opens a websocket to /ws and
// renders whatever Snapshot JSON arrives. No templating: the payload
// shape is the same JSON the /api routes return, and the page just needs
// to display it, not generate it server-side per request.
const indexHTML = `<!DOCTYPE html>
<html>
<head><title>groundctl</title></head>
<body>
<h1>groundctl</h1>
<pre id="snapshot">connecting...</pre>
<script>
  const proto = window.location.protocol === "https:" ? "wss:" : "ws:";
  const ws = new WebSocket(proto + "//" + window.location.host + "/ws");
  ws.onmessage = (ev) => {
    document.getElementById("snapshot").textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
  };
  ws.onclose = () => {
    document.getElementById("snapshot").textContent = "disconnected";
  };
</script>
</body>
</html>
`
