package certificates

import (
	"bytes"
	"html/template"
)

const pageLayout = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; max-width: 720px; margin: 2rem auto; color: #222; }
label { display: block; margin-top: .75rem; font-weight: bold; }
input, select { width: 100%; padding: .4rem; box-sizing: border-box; }
.error { color: #b00020; font-weight: normal; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: .4rem; text-align: left; }
.ok { color: #1b5e20; } .degraded { color: #e65100; } .failed { color: #b00020; } .skipped { color: #777; }
button { margin-top: 1rem; padding: .5rem 1.5rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{end}}
{{define "foot"}}</body>
</html>
{{end}}`

const formPage = `{{template "head" .}}
<form method="post" action="/certificates">
{{range .Fields}}
<label for="{{.Name}}">{{.Label}}{{with index $.Errors .Name}} <span class="error">{{.}}</span>{{end}}</label>
{{if eq .Name "grade"}}<select id="grade" name="grade">{{$v := index $.Values .Name}}{{range $.Grades}}<option{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}</select>
{{else if eq .Name "month"}}<select id="month" name="month">{{$v := index $.Values .Name}}{{range $.Months}}<option{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}</select>
{{else}}<input id="{{.Name}}" name="{{.Name}}" type="{{.Type}}" value="{{index $.Values .Name}}" required>
{{end}}{{end}}
<button type="submit">Generate certificate</button>
</form>
{{template "foot" .}}`

const resultPage = `{{template "head" .}}
{{with .Outcome.Record}}
<p>Certificate <strong>{{.ID}}</strong> for {{.Name}} ({{.Domain}}).</p>
<p>Status: <strong>{{.Status}}</strong></p>
{{end}}
<table>
<tr><th>Step</th><th>Result</th><th>Detail</th></tr>
{{range .Outcome.Steps}}<tr><td>{{.Step}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{.Message}}</td></tr>
{{end}}
</table>
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}">Download {{.Outcome.ArtifactName}}</a></p>{{end}}
<p><a href="/">Issue another certificate</a></p>
{{template "foot" .}}`

type formField struct {
	Name  string
	Label string
	Type  string
}

var formFields = []formField{
	{"name", "Name", "text"},
	{"domain", "Domain", "text"},
	{"month", "Duration (months)", "number"},
	{"start_date", "Start date", "date"},
	{"end_date", "End date", "date"},
	{"email", "Email", "email"},
	{"grade", "Grade", "text"},
}

var monthOptions = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

type formView struct {
	Title  string
	Fields []formField
	Grades []string
	Months []string
	Values map[string]string
	Errors map[string]string
}

type resultView struct {
	Title       string
	Outcome     *WorkflowOutcome
	DownloadURL string
}

var pages = struct {
	form   *template.Template
	result *template.Template
}{
	form:   template.Must(template.Must(template.New("layout").Parse(pageLayout)).New("form").Parse(formPage)),
	result: template.Must(template.Must(template.New("layout").Parse(pageLayout)).New("result").Parse(resultPage)),
}

func renderPage(tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
