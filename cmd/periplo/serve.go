package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/periplo-ai/periplo/pkg/config"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/runtime"
	"github.com/periplo-ai/periplo/pkg/server"
)

// ServeCmd starts the HTTP chat server.
type ServeCmd struct {
	// Zero-config options, also usable to override a loaded file.
	Provider string `help:"Reasoner provider (openai, anthropic, gemini, ollama)."`
	Model    string `help:"Reasoner model name."`
	APIKey   string `name:"api-key" help:"Reasoner API key (defaults to the provider's environment variable)."`
	Host     string `help:"Custom reasoner base URL."`
	Region   string `help:"Metro area to serve." placeholder:"NAME"`

	// Server options
	Port    int  `help:"Port to listen on." default:"-1"`
	Observe bool `help:"Enable observability (Prometheus metrics + OTLP tracing to localhost:4317)."`
	Watch   bool `help:"Watch the config source and apply reloadable sections live."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := loadConfig(cli, c.Watch)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}
	c.applyFlags(cfg)

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble runtime: %w", err)
	}
	defer rt.Close()

	if loader != nil {
		loader.SetOnChange(rt.ApplyConfig)
	}

	srv, err := server.New(cfg.Server, rt.Agent())
	if err != nil {
		return err
	}

	printServeInfo(cfg)

	return srv.Start(ctx)
}

// applyFlags lays the command-line overrides over the loaded config.
// Switching provider resets the model section so stale host and model
// values cannot leak across providers.
func (c *ServeCmd) applyFlags(cfg *config.Config) {
	applyModelFlags(cfg, c.Provider, c.Model, c.APIKey, c.Host)
	if c.Region != "" && c.Region != cfg.Region {
		cfg.Region = c.Region
		cfg.Gazetteer = nil
		cfg.SetDefaults()
	}
	if c.Port >= 0 {
		cfg.Server.Port = c.Port
	}
	if c.Observe {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.SetDefaults()
	}
}

// applyModelFlags is shared by serve and chat.
func applyModelFlags(cfg *config.Config, provider, modelName, apiKey, host string) {
	if provider != "" && provider != cfg.Model.Provider {
		cfg.Model = model.Config{Provider: provider}
	}
	if modelName != "" {
		cfg.Model.Model = modelName
	}
	if apiKey != "" {
		cfg.Model.APIKey = apiKey
	}
	if host != "" {
		cfg.Model.Host = host
	}
	cfg.Model.SetDefaults()
	config.ApplyEnvKeys(cfg)
}

func printServeInfo(cfg *config.Config) {
	green, reset := "", ""
	if fileInfo, err := os.Stdout.Stat(); err == nil && (fileInfo.Mode()&os.ModeCharDevice) != 0 {
		green = "\033[38;2;16;185;129m"
		reset = "\033[0m"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("\n%sPeriplo ready%s\n", green, reset)
	fmt.Printf("   Region:   %s\n", cfg.Region)
	fmt.Printf("   Chat:     http://%s/v1/chat\n", addr)
	fmt.Printf("   Health:   http://%s/healthz\n", addr)
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:  http://%s/metrics\n", addr)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:  %s\n", cfg.Observability.Tracing.EndpointURL)
	}
	if cfg.Model.APIKey == "" && cfg.Model.Provider != model.ProviderOllama {
		fmt.Printf("   Reasoner: none (deterministic fallback)\n")
	} else {
		fmt.Printf("   Reasoner: %s/%s\n", cfg.Model.Provider, cfg.Model.Model)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
