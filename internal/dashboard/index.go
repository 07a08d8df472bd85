package dashboard

// indexHTML is the single-page dashboard. It polls the agents API and tails
// the websocket event feed; no build step, no assets to serve.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>sentinel</title>
<style>
body { font-family: ui-monospace, monospace; background: #111; color: #ddd; margin: 2em; }
h1 { font-size: 1.2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
td, th { padding: 4px 12px; border-bottom: 1px solid #333; text-align: left; }
.running { color: #6c6; }
.error { color: #c66; }
.stopped { color: #888; }
button { background: #222; color: #ddd; border: 1px solid #555; padding: 2px 8px; cursor: pointer; }
#events { max-height: 20em; overflow-y: auto; font-size: 0.85em; color: #aaa; }
</style>
</head>
<body>
<h1>sentinel agents</h1>
<table id="agents"><thead><tr>
<th>name</th><th>kind</th><th>state</th><th>retries</th><th>uptime</th><th></th>
</tr></thead><tbody></tbody></table>
<h1>events</h1>
<div id="events"></div>
<script>
function fmtUptime(ns) {
  var s = Math.floor(ns / 1e9);
  if (s < 60) return s + "s";
  if (s < 3600) return Math.floor(s / 60) + "m" + (s % 60) + "s";
  return Math.floor(s / 3600) + "h" + Math.floor((s % 3600) / 60) + "m";
}
function act(name, op) {
  fetch("/api/agents/" + name + "/" + op, {method: "POST"}).then(refresh);
}
function refresh() {
  fetch("/api/agents").then(function(r) { return r.json(); }).then(function(agents) {
    var body = document.querySelector("#agents tbody");
    body.innerHTML = "";
    (agents || []).forEach(function(a) {
      var row = body.insertRow();
      row.insertCell().textContent = a.name;
      row.insertCell().textContent = a.kind || "";
      var state = row.insertCell();
      state.textContent = a.state;
      state.className = a.state;
      row.insertCell().textContent = a.retry_count;
      row.insertCell().textContent = a.state === "running" ? fmtUptime(a.uptime) : "";
      var ops = row.insertCell();
      ["start", "stop", "restart"].forEach(function(op) {
        var b = document.createElement("button");
        b.textContent = op;
        b.onclick = function() { act(a.name, op); };
        ops.appendChild(b);
      });
    });
  });
}
function connect() {
  var ws = new WebSocket("ws://" + location.host + "/ws");
  ws.onmessage = function(msg) {
    var ev = JSON.parse(msg.data);
    var div = document.getElementById("events");
    var line = document.createElement("div");
    line.textContent = ev.timestamp + " [" + ev.kind + "] " + ev.agent + ": " + ev.message;
    div.insertBefore(line, div.firstChild);
    while (div.childNodes.length > 200) div.removeChild(div.lastChild);
    refresh();
  };
  ws.onclose = function() { setTimeout(connect, 2000); };
}
refresh();
setInterval(refresh, 5000);
connect();
</script>
</body>
</html>
`
