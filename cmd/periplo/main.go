// Command periplo runs the reasoning core of the travel agent.
//
// Usage:
//
//	periplo serve --config periplo.yaml
//	periplo serve --provider anthropic --model claude-sonnet-4-20250514
//	periplo chat "two days in Alfama with my wife, we love fado"
//	periplo plan "from Baixa to Belém tomorrow, avoid crowds"
//	periplo validate periplo.yaml --print-config
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	periplo "github.com/periplo-ai/periplo"
	"github.com/periplo-ai/periplo/pkg/config"
	"github.com/periplo-ai/periplo/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP chat server."`
	Chat     ChatCmd     `cmd:"" help:"Chat with the agent from the terminal."`
	Plan     PlanCmd     `cmd:"" help:"Resolve an utterance into its upstream call plan without executing it."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration."`

	Config    string   `short:"c" help:"Path to config file, or the key when --source is remote." type:"path"`
	Source    string   `help:"Config source (file, consul, etcd, zookeeper)." default:"file"`
	Endpoints []string `help:"Remote config store endpoints." placeholder:"HOST:PORT"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string   `help:"Log file path (empty = stderr)."`
	LogFormat string   `help:"Log format (simple, verbose, or text)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(periplo.GetVersion().String())
	return nil
}

// loadConfig resolves the effective configuration: from the configured
// source when --config is set, otherwise the bundled default region with
// vendor keys taken from the environment. The loader is nil in the
// default case and whenever watch is off.
func loadConfig(cli *CLI, watch bool) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg := config.Default()
		config.ApplyEnvKeys(cfg)
		return cfg, nil, nil
	}

	source, err := config.ParseSourceType(cli.Source)
	if err != nil {
		return nil, nil, err
	}

	cfg, loader, err := config.LoadConfigWithLoader(config.LoaderOptions{
		Type:      source,
		Path:      cli.Config,
		Endpoints: cli.Endpoints,
		Watch:     watch,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !watch {
		loader.Stop()
		loader = nil
	}
	return cfg, loader, nil
}

// initLogger installs the process logger from the global flags. The
// returned cleanup closes the log file, if any.
func initLogger(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = file, closeFile
	}

	logger.Init(level, output, cli.LogFormat)
	return cleanup, nil
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("periplo"),
		kong.Description("Periplo - reasoning core for a single-region travel agent"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
