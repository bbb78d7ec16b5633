package web

import "embed"

//go:embed *.tmpl
var StaticTemplates embed.FS
