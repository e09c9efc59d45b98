package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/soaringjerry/whenwhy/internal/config"
	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/utils"
)

var (
	commit    = utils.SafeEnv("WHENWHY_COMMIT", "dev")
	buildTime = utils.SafeEnv("WHENWHY_BUILD_TIME", "")
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path (default ./config.yaml if present)." type:"path"`

	Serve      ServeCmd  `cmd:"" default:"1" help:"Run the study server."`
	Import     ImportCmd `cmd:"" help:"Load a JSON export into storage."`
	Researcher struct {
		Add ResearcherAddCmd `cmd:"" help:"Create a researcher account."`
	} `cmd:"" help:"Manage researcher accounts."`
}

func main() {
	// A local .env file is optional.
	_ = godotenv.Load()

	kctx := kong.Parse(&CLI,
		kong.Name("whenwhy"),
		kong.Description("Study server for AI assistance timing and reflection in problem framing."),
		kong.UsageOnError(),
		kong.Vars{"version": commit},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Options{Mode: cfg.Log.Mode, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(&appContext{cfg: cfg, log: log})
	if err != nil {
		log.Error("command failed", "command", kctx.Command(), "err", err)
	}
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}
