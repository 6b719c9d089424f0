package admin

import (
	"bytes"
	"html/template"

	"certificate-portal/certificate-portal-backend/internal/ledger"
)

const layout = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: .3rem .5rem; text-align: left; }
th { background: #4472c4; color: #fff; }
.error { color: #b00020; }
.notice { color: #1b5e20; }
form { margin-top: 1rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{with .Error}}<p class="error">{{.}}</p>{{end}}
{{with .Notice}}<p class="notice">{{.}}</p>{{end}}
{{end}}
{{define "foot"}}</body>
</html>
{{end}}`

const loginPage = `{{template "head" .}}
<form method="post" action="/admin/login">
<label for="key">Admin key</label>
<input id="key" name="key" type="password" autocomplete="current-password" required>
<button type="submit">Sign in</button>
</form>
{{template "foot" .}}`

const ledgerPage = `{{template "head" .}}
<form method="post" action="/admin/logout"><button type="submit">Sign out</button></form>
{{if .Table.Rows}}
<p>{{len .Table.Rows}} certificate(s) logged.</p>
<p>Download: <a href="/admin/ledger/download?format=csv">CSV</a> | <a href="/admin/ledger/download?format=xlsx">Excel</a> | <a href="/admin/ledger/download?format=pdf">PDF</a></p>
<table>
<tr>{{range .Table.Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}
</table>
{{else}}
<p>No certificates have been logged yet.</p>
{{end}}
<h2>Replace ledger</h2>
<p>Uploading a file overwrites the whole ledger. The file must be CSV or Excel with the ledger columns.</p>
<form method="post" action="/admin/ledger/upload" enctype="multipart/form-data">
<input name="file" type="file" accept=".csv,.xlsx" required>
<button type="submit">Upload</button>
</form>
{{template "foot" .}}`

type pageView struct {
	Title  string
	Error  string
	Notice string
	Table  *ledger.Table
}

var (
	loginTemplate  = template.Must(template.Must(template.New("layout").Parse(layout)).New("login").Parse(loginPage))
	ledgerTemplate = template.Must(template.Must(template.New("layout").Parse(layout)).New("ledger").Parse(ledgerPage))
)

func render(tmpl *template.Template, view pageView) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
