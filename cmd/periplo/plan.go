package main

import (
	"context"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/plan"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// PlanCmd resolves an utterance into its upstream call plan without
// executing any of it. Resolution runs on the deterministic chain, so
// the command needs no credentials and does no I/O.
type PlanCmd struct {
	Text   string `arg:"" help:"Utterance to resolve."`
	Format string `short:"f" help:"Output format: yaml, json." default:"yaml" enum:"yaml,json"`
}

// planOutput is the dry-run report.
type planOutput struct {
	Summary  string             `yaml:"summary" json:"summary"`
	Thoughts []thoughtOutput    `yaml:"thoughts" json:"thoughts"`
	Calls    []callOutput       `yaml:"calls" json:"calls"`
	Flags    map[string]bool    `yaml:"flags,omitempty" json:"flags,omitempty"`
	Context  *extract.Extracted `yaml:"extracted,omitempty" json:"extracted,omitempty"`
}

type thoughtOutput struct {
	Step     int      `yaml:"step" json:"step"`
	Text     string   `yaml:"text" json:"text"`
	Services []string `yaml:"services,omitempty" json:"services,omitempty"`
}

type callOutput struct {
	Kind     string            `yaml:"kind" json:"kind"`
	Key      string            `yaml:"key" json:"key"`
	Provider string            `yaml:"provider" json:"provider"`
	Priority int               `yaml:"priority" json:"priority"`
	Params   map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

func (c *PlanCmd) Run(cli *CLI) error {
	cfg, loader, err := loadConfig(cli, false)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}

	extractor := extract.New(cfg.Gazetteer)
	builder := reasoning.NewBuilder(nil, cfg.Region)
	resolver := plan.NewResolver(cfg.Region)

	ex := extractor.Extract(c.Text)
	thoughts := builder.Build(context.Background(), c.Text, ex)
	resolved := resolver.Resolve(thoughts, ex)

	out := planOutput{
		Summary: ex.Summary,
		Context: &ex,
	}
	for _, th := range thoughts {
		to := thoughtOutput{Step: th.Step, Text: th.Text}
		for _, s := range th.Services {
			to.Services = append(to.Services, string(s))
		}
		out.Thoughts = append(out.Thoughts, to)
	}
	for _, spec := range resolved.Specs {
		out.Calls = append(out.Calls, callOutput{
			Kind:     string(spec.Kind),
			Key:      spec.Key,
			Provider: string(travel.ProviderFor(spec.Kind)),
			Priority: spec.Priority,
			Params:   spec.Params,
		})
	}
	if resolved.RouteInferred || resolved.DefaultsUsed {
		out.Flags = map[string]bool{}
		if resolved.RouteInferred {
			out.Flags["route_inferred"] = true
		}
		if resolved.DefaultsUsed {
			out.Flags["defaults_used"] = true
		}
	}

	switch c.Format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	default:
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(out)
	}
}
