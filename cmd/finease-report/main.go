// finease-report prints transaction lists and reports straight from the
// configured store. It is an operator tool: no bearer identity is checked.
package main

import (
	"context"
	"os"
	"time"

	"finease/internal/cli"
	"finease/internal/config"
	"finease/internal/log"

	"github.com/alecthomas/kong"
)

func main() {
	var app reportCLI
	kctx := kong.Parse(&app,
		kong.Name("finease-report"),
		kong.Description("Query finease transactions and reports from the command line."))

	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(os.Stderr, (*config.Config).ValidateReport)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(app.Timeout)*time.Second)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg, false)

	err := kctx.Run(newRunContext(ctx, res.Store, os.Stdout))
	if err != nil {
		logger.WithComponent(log.ComponentReport).Error("Report command failed",
			log.FieldBackend, cfg.DataBackend,
			log.FieldError, err)
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Backend cleanup error", log.FieldError, cerr)
	}
	kctx.FatalIfErrorf(err)
}
