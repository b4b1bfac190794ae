package dashboard

// indexPage is a minimal operator page: one button per registered command
// (from /api/commands) sent over the WebSocket, and the raw telemetry stream
const indexPage = `<!DOCTYPE html>
<html>
<head><title>Nightfall</title></head>
<body>
<h1>Nightfall Rescue Robot</h1>
<p id="drive"></p>
<p id="safety"></p>
<pre id="telemetry"></pre>
<p><a href="/api/status">System Status</a> | <a href="/api/telemetry">Telemetry Data</a> | <a href="/api/devices">Devices</a></p>
<script>
var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function (e) {
  document.getElementById('telemetry').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
};
function send(cmd) {
  ws.send(JSON.stringify({command: cmd}));
}
fetch('/api/commands').then(function (r) { return r.json(); }).then(function (list) {
  list.commands.forEach(function (c) {
    var b = document.createElement('button');
    b.textContent = c.name;
    b.title = c.format || '';
    b.onclick = function () { send(c.name); };
    document.getElementById(c.allowLatched ? 'safety' : 'drive').appendChild(b);
  });
});
</script>
</body>
</html>
`
