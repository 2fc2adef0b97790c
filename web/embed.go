// Package web embeds the dashboard served at /.
package web

import "embed"

// Content holds the dashboard page, script and stylesheet.
//
//go:embed index.html app.js styles.css
var Content embed.FS
