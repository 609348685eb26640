// Package cli is the licensectl operator tool.
package cli

import (
	"time"

	"github.com/alecthomas/kong"
)

// Globals holds flags shared by all subcommands.
type Globals struct {
	Server  string           `help:"Base URL of the license service" default:"http://localhost:8000" env:"LICENSE_SERVER"`
	Timeout time.Duration    `help:"HTTP timeout" default:"10s"`
	Version kong.VersionFlag `help:"Print version" short:"v"`
}

// CLI is the top-level command tree parsed by Kong.
type CLI struct {
	Globals

	Migrate    MigrateCmd    `cmd:"" help:"Apply the embedded database schema"`
	Token      TokenCmd      `cmd:"" help:"Mint an operator JWT"`
	Keygen     KeygenCmd     `cmd:"" help:"Print freshly generated license keys"`
	Validate   ValidateCmd   `cmd:"" help:"Validate a license key for a domain"`
	Deactivate DeactivateCmd `cmd:"" help:"Free the slot a domain holds on a license"`
}
