// Package web serves the audit dashboard page.
package web

import (
	"net/http"
	"os"
	"path/filepath"
)

// fallbackPage is served when no dashboard.html is deployed next to
// the binary. It subscribes to the audit stream and prints raw events.
const fallbackPage = `<!DOCTYPE html>
<html>
<head><title>privacy-sentinel</title></head>
<body>
<h1>privacy-sentinel audit stream</h1>
<pre id="events"></pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onopen = () => ws.send(JSON.stringify({type: "subscribe", events: ["detection", "anonymization", "consent_change", "dsr_transition"]}));
ws.onmessage = (e) => {
  const pre = document.getElementById("events");
  pre.textContent = e.data + "\n" + pre.textContent;
};
</script>
</body>
</html>`

// ServeDashboard serves the audit dashboard. A dashboard.html deployed
// under web/ takes precedence over the built-in page.
func ServeDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	dashboardPath := filepath.Join("web", "dashboard.html")
	if _, err := os.Stat(dashboardPath); err == nil {
		http.ServeFile(w, r, dashboardPath)
		return
	}
	w.Write([]byte(fallbackPage))
}
