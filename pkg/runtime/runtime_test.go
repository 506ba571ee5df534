package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periplo-ai/periplo/pkg/agent"
	"github.com/periplo-ai/periplo/pkg/config"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/ratelimit"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// offlineConfig strips any credentials the host environment might leak
// in, so the runtime under test has no reasoner and no vendor clients.
func offlineConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.APIKey = ""
	cfg.Amap.Key = ""
	cfg.QWeather.Key = ""
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)
}

func TestOfflineRuntimeServesDegradedAnswers(t *testing.T) {
	rt, err := New(context.Background(), offlineConfig())
	require.NoError(t, err, "a keyless config must still produce a runnable process")
	defer func() {
		require.NoError(t, rt.Close())
	}()

	reply, err := rt.Agent().Handle(context.Background(), agent.Request{
		UserID: "u-offline",
		Text:   "Planning a 2-day trip around Alfama, avoid crowds please",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, reply.TurnID)
	assert.NotEmpty(t, reply.Answer)
	assert.True(t, reply.Degraded, "no providers and no reasoner means a fallback answer")
}

func TestNewAppliesDayLimitsFromConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.DefaultDays = 2
	cfg.MaxDays = 3

	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	reply, err := rt.Agent().Handle(context.Background(), agent.Request{
		UserID:          "u-days",
		Text:            "Planning a 10-day trip around Baixa",
		IncludeThoughts: true,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Extracted)
	assert.Equal(t, 3, reply.Extracted.Keywords.Days, "requested days should clamp to the configured maximum")
}

func TestApplyConfigReconfiguresLimits(t *testing.T) {
	rt, err := New(context.Background(), offlineConfig())
	require.NoError(t, err)
	defer rt.Close()

	next := offlineConfig()
	next.RateLimit.PerProvider = map[string]int{string(travel.ProviderWeather): 9}
	next.RateLimit.SetDefaults()

	require.NoError(t, rt.ApplyConfig(next))
	assert.Equal(t, 9, rt.Limiter().QPS(travel.ProviderWeather))
	assert.Equal(t, ratelimit.DefaultQPS, rt.Limiter().QPS(travel.ProviderPOI))

	require.Error(t, rt.ApplyConfig(nil))
}

func TestBuildReasoner(t *testing.T) {
	r, err := buildReasoner(model.Config{})
	require.NoError(t, err)
	assert.Nil(t, r, "a keyless provider should disable the reasoner, not fail")

	r, err = buildReasoner(model.Config{Provider: model.ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, r)
}
