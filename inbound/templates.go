package inbound

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type landingView struct {
	AppName     string
	InstallPath string
	ShopHint    string
}

type successView struct {
	AppName     string
	Shop        string
	AccessToken string
	Scope       string
	ExpiresIn   int64
}
