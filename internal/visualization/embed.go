package visualization

import "embed"

// templates contains the embedded chart page.
//
//go:embed templates/*
var templates embed.FS

// IndexHTML returns the chart page served at "/".
func IndexHTML() ([]byte, error) {
	return templates.ReadFile("templates/index.html")
}
