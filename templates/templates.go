package templates

var Layout = `{{define "layout"}}
<!DOCTYPE html>
<html lang="en" data-bs-theme="dark">
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css" rel="stylesheet" integrity="sha384-QWTKZyjpPEjISv5WaRU9OFeRpok6YctnYmDr5pNlyT2bRjXh0JMhjY6hW+ALEwIH" crossorigin="anonymous">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    {{block "head" .}}{{end}}
    <nav class="navbar navbar-expand-lg bg-body-tertiary p-2">
        <a class="navbar-brand" href="/">swinit</a>
        <div class="collapse navbar-collapse" id="navbarText">
            <ul class="navbar-nav me-auto mb-2 mb-lg-0">
                <li class="nav-item active">
                    <a class="nav-link" aria-current="page" href="/">Status</a>
                </li>
                <li class="nav-item">
                    <a class="nav-link" href="/ports/">Serial ports</a>
                </li>
            </ul>
        </div>
    </nav>
    <div>
        <h1 class="p-2">
            {{template "title" .}}
        </h1>
    </div>
    <div class="p-2">
        {{template "body" .}}
    </div>
</html>
{{end}}
`

var Status = `{{define "head"}}<meta http-equiv="refresh" content="2">{{end}}
{{define "title"}}
Console {{ .Device }}
{{end}}

{{define "body"}}
<h3>{{ .Status.State }}</h3>
<table class="table table-hover">
    <tr><th>Session</th><td>{{ if .Status.SessionID }}{{ .Status.SessionID }}{{ else }}none yet{{ end }}</td></tr>
    {{ if .Status.SessionID }}<tr><th>Started</th><td>{{ .Status.Started.Format "15:04:05" }}</td></tr>{{ end }}
    <tr><th>Model</th><td>{{ .Status.Model }}</td></tr>
    <tr><th>Family</th><td>{{ .Status.Family }}</td></tr>
    <tr><th>Stack role</th><td>{{ .Status.Role }}</td></tr>
    <tr><th>Management interface</th><td>{{ .Status.Mgmt }}</td></tr>
    <tr><th>Last announcement</th><td>{{ .Status.LastEvent }}</td></tr>
</table>

<h3>Devices handled</h3>
<ul>
    <li>Completed: {{ .Status.Completed }}</li>
    <li>Unsupported: {{ .Status.Unsupported }}</li>
    <li>Timed out: {{ .Status.Timeouts }}</li>
</ul>
{{ if .Status.LastError }}
<div class="alert alert-warning">{{ .Status.LastError }}</div>
{{ end }}
{{end}}
`

var Ports = `{{define "title"}}
Serial ports list
{{end}}
{{define "body"}}
{{$serial := .Ports | len -}}
<h3>Serial ports present: {{ .Ports | len -}}</h3>
{{if ne $serial 0}}
<table class="table table-hover">
    <tr>
        <th>Port</th>
        <th>Description</th>
        <th>USB?</th>
        <th>PID:VID</th>
        <th>Serial</th>
        <th>In use</th>
    </tr>
    {{ range .Ports }}
    <tr>
        <td>{{ .Name }}</td>
        <td>{{ .Product }}</td>
        <td>{{ if .IsUSB }}Yes{{ else }}No{{ end }}</td>
        <td>{{ if .IsUSB }}{{ .PID }}:{{ .VID }}{{ end}}</td>
        <td>{{ if .IsUSB }}{{ .SerialNumber }}{{ end }}</td>
        <td>{{ if eq .Name $.Device }}Yes{{ end }}</td>
    </tr>
    {{ end }}
</table>
{{ end }}
{{end}}`
