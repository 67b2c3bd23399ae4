// Package tables embeds the decision tables shipped with the service.
package tables

import "embed"

// FS holds the bundled definitions
//
//go:embed *.yaml
var FS embed.FS
