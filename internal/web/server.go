package web

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const indexPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Bodynode %[1]s</title></head>
<body>
<h1>Bodynode %[1]s</h1>
<p>Status: <a href="/api/status">/api/status</a> &middot; Logs: <a href="/api/logs?format=text">/api/logs</a></p>
<pre id="o">waiting for data</pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const s = JSON.parse(ev.data);
  document.getElementById("o").textContent =
    "status " + s.status + "\nquaternion " + s.quaternion.map((v) => v.toFixed(4)).join(", ") +
    "\nroll " + s.roll_deg.toFixed(1) + "  pitch " + s.pitch_deg.toFixed(1) + "  yaw " + s.yaw_deg.toFixed(1);
};
</script>
</body></html>
`

func Handler(status *Status, hub *Hub, logs *LogBuffer, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	if hub != nil {
		mux.Handle("/ws", streamHandler(hub, log))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, indexPage, html.EscapeString(snap.Bodypart))
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, status *Status, hub *Hub, logs *LogBuffer, log logrus.FieldLogger) error {
	if status == nil {
		status = NewStatus()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, hub, logs, log),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
