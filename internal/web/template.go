package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/keymatrix/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"usToMs": func(us int64) string {
		return fmt.Sprintf("%.3g", float64(us)/1000)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Key Matrix</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
table.grid { width: auto; }
table.grid td, table.grid th { width: 2em; text-align: center; border: 1px solid #ddd; }
.down { background: green; color: white; font-weight: bold; }
.up { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Key Matrix{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Keys</h2>
<table class="grid">
<tr><th></th>{{range $c := .ColIndex}}<th>{{$c}}</th>{{end}}</tr>
{{range $r, $row := .Grid}}<tr><th>{{$r}}</th>{{range $c, $down := $row}}<td id="k-{{$r}}-{{$c}}" class="{{if $down}}down{{else}}up{{end}}">{{if $down}}1{{else}}0{{end}}</td>{{end}}</tr>
{{end}}</table>
<table>
<tr><th>Held</th><td id="held">{{.Held}}</td></tr>
<tr><th>Pending timers</th><td>{{.Pending}}</td></tr>
<tr><th>Scan errors</th><td>{{.ScanErrors}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>KEY DOWN</th><td>{{.Counts.Down}}</td></tr>
<tr><th>KEY UP</th><td>{{.Counts.Up}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Matrix</th><td>{{.Config.Rows}} x {{.Config.Cols}}</td></tr>
<tr><th>Scan</th><td>{{usToMs .Config.ScanUs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.Algorithm}} ({{.Config.InitialDelay}} + {{.Config.LockoutPeriod}} ticks of {{usToMs .Config.TickUs}}ms)</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "keymatrix/events";
  var dot = document.getElementById("live-dot");
  var heldEl = document.getElementById("held");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.key) return;
      var el = document.getElementById("k-" + msg.key.row + "-" + msg.key.col);
      if (el) {
        var down = msg.key.event === "KEY_DOWN";
        el.className = down ? "down" : "up";
        el.textContent = down ? "1" : "0";
      }
      heldEl.textContent = msg.key.held;
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

// pageData adds the values the template cannot derive itself.
type pageData struct {
	status.Snapshot
	Uptime   time.Duration
	Grid     [][]bool
	ColIndex []int
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	cols := snap.Config.Cols
	grid := make([][]bool, len(snap.Cooked))
	for r, row := range snap.Cooked {
		grid[r] = make([]bool, cols)
		for c := 0; c < cols; c++ {
			grid[r][c] = row&(1<<c) != 0
		}
	}
	colIndex := make([]int, cols)
	for c := range colIndex {
		colIndex[c] = c
	}

	data := pageData{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Grid:     grid,
		ColIndex: colIndex,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
