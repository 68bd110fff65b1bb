// Package content embeds the default reference data and ability scripts.
package content

import "embed"

// RefData holds the refdata/*.yaml catalogs.
//
//go:embed refdata/*.yaml
var RefData embed.FS

// Scripts holds the scripts/*.lua ability hooks.
//
//go:embed scripts/*.lua
var Scripts embed.FS

// RefDataDir and ScriptsDir are the roots inside the embedded filesystems.
const (
	RefDataDir = "refdata"
	ScriptsDir = "scripts"
)
