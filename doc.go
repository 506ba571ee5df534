// Package periplo is the reasoning and orchestration core of a
// single-region AI travel agent.
//
// Each user utterance runs through one pipeline: deterministic keyword
// and context extraction, a reasoning chain (model-backed when
// credentials are configured, rule-based otherwise), resolution into a
// deduplicated plan of upstream calls, rate-limited concurrent
// collection of weather, POI, navigation, traffic and input-hint data,
// and finally answer composition with per-user session history.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/periplo-ai/periplo/cmd/periplo@latest
//
// Create a configuration:
//
//	region: Lisbon
//	model:
//	  provider: anthropic
//	  model: claude-sonnet-4-20250514
//	  api_key: ${ANTHROPIC_API_KEY}
//	amap:
//	  key: ${AMAP_API_KEY}
//	qweather:
//	  key: ${QWEATHER_API_KEY}
//
// Start the server:
//
//	periplo serve --config periplo.yaml
//
// Or chat without any configuration at all; with no credentials the
// pipeline degrades to its deterministic chains:
//
//	periplo chat "two days around Alfama with my wife, we love fado"
//
// # Using as Go Library
//
// The runtime package assembles the whole pipeline from one config:
//
//	import (
//	    "github.com/periplo-ai/periplo/pkg/agent"
//	    "github.com/periplo-ai/periplo/pkg/config"
//	    "github.com/periplo-ai/periplo/pkg/runtime"
//	)
//
//	rt, err := runtime.New(ctx, config.Default())
//	reply, err := rt.Agent().Handle(ctx, agent.Request{UserID: "u1", Text: "..."})
//
// Individual stages (extract, reasoning, plan, collect, compose) are
// importable on their own; each is usable without the others.
//
// # Architecture
//
//	Utterance → Extract → Reason → Plan → Collect (rate-limited, concurrent) → Compose → Reply
//
// Upstream trouble never fails a turn: failed or timed-out fetches
// become labelled gaps in a degraded answer, and the turn is still
// recorded in the session.
package periplo
