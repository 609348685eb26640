package main

import (
	"io"
	"os"

	"license-service/internal/cli"

	"github.com/alecthomas/kong"
)

var version = "dev"

func main() {
	var root cli.CLI
	ctx := kong.Parse(&root,
		kong.Name("licensectl"),
		kong.Description("Operator tool for the license service"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(&root.Globals),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
