package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitpro/recruitpro-jobs/config"
)

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{Services: "http,worker,reaper"}
	cfg.Sanitize()
	return cfg
}

func TestNewServicesWiresContainer(t *testing.T) {
	services := NewServices(&ServiceDeps{Config: testConfig()})

	require.NotNil(t, services.Jobs)
	require.NotNil(t, services.Reaper)
	require.NotNil(t, services.Worker)
	require.NotNil(t, services.Queue)
	require.NotNil(t, services.Broker)

	// Every job type ships with a registered handler.
	assert.ElementsMatch(t, []string{
		"echo",
		"screening_summary",
		"outreach_email",
		"job_description",
		"salary_estimate",
	}, services.Registry.Types())
}

func TestNewServicesNilDeps(t *testing.T) {
	services := NewServices(nil)
	assert.Nil(t, services.Jobs)
	assert.Nil(t, services.Queue)
}

func TestGetEnabledServices(t *testing.T) {
	cfg := testConfig()
	assert.ElementsMatch(t, []string{"http", "worker", "reaper"}, GetEnabledServices(cfg))

	cfg.Services = "worker"
	assert.Equal(t, []string{"worker"}, GetEnabledServices(cfg))

	cfg.Services = "bogus"
	assert.Empty(t, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.NoError(t, ValidateServiceConfig(testConfig()))

	bad := testConfig()
	bad.Services = "bogus"
	require.Error(t, ValidateServiceConfig(bad))

	require.Error(t, ValidateServiceConfig(nil))
}

func TestErrorChannelBufferSize(t *testing.T) {
	enabled := map[config.ServiceMode]bool{
		config.ServiceModeHTTP:   true,
		config.ServiceModeWorker: true,
	}
	assert.Equal(t, 3, errorChannelBufferSize(enabled))
	assert.Equal(t, 1, errorChannelBufferSize(nil))
}
