package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/quizchain/internal/models"
)

type stubProber map[models.Address]bool

func (p stubProber) HasCode(addr models.Address) bool { return p[addr] }

const (
	proberCaller = models.Address("0xcaller")
	proberOracle = models.Address("0xoracle")
)

func validConfig() *models.OracleConfig {
	return &models.OracleConfig{
		NetworkID:         models.Hash32{31: 1},
		SubscriptionID:    42,
		OracleAddress:     proberOracle,
		EvaluationScript:  "return grade(questions, answers)",
		AuthorizedCallers: map[models.Address]bool{proberCaller: true},
	}
}

func TestValidateConfigReady(t *testing.T) {
	rep := ValidateConfig(validConfig(), proberCaller, stubProber{proberOracle: true})
	assert.True(t, rep.OK())
	assert.Equal(t, "configuration ready", rep.Summary())
}

func TestValidateConfigReportsAllFailures(t *testing.T) {
	cfg := validConfig()
	cfg.NetworkID = models.ZeroHash
	cfg.AuthorizedCallers = nil

	rep := ValidateConfig(cfg, proberCaller, stubProber{proberOracle: true})
	require.False(t, rep.OK())
	// Both failures are reported together, not just the first.
	assert.Equal(t, []Check{CheckNetworkID, CheckCallerAuthorized}, rep.Failed)
	assert.True(t, rep.Has(CheckNetworkID))
	assert.False(t, rep.Has(CheckSubscription))
	assert.Contains(t, rep.Summary(), "network_id")
	assert.Contains(t, rep.Summary(), "caller_authorized")
}

func TestValidateConfigEachCheck(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.OracleConfig)
		want   Check
	}{
		{"zero subscription", func(c *models.OracleConfig) { c.SubscriptionID = 0 }, CheckSubscription},
		{"zero network id", func(c *models.OracleConfig) { c.NetworkID = models.ZeroHash }, CheckNetworkID},
		{"blank script", func(c *models.OracleConfig) { c.EvaluationScript = "  " }, CheckEvaluationScript},
		{"caller not authorized", func(c *models.OracleConfig) { delete(c.AuthorizedCallers, proberCaller) }, CheckCallerAuthorized},
		{"oracle address empty", func(c *models.OracleConfig) { c.OracleAddress = "" }, CheckOracleEndpoint},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			rep := ValidateConfig(cfg, proberCaller, stubProber{proberOracle: true})
			assert.Equal(t, []Check{tc.want}, rep.Failed)
		})
	}
}

func TestValidateConfigEndpointWithoutCode(t *testing.T) {
	rep := ValidateConfig(validConfig(), proberCaller, stubProber{})
	assert.Equal(t, []Check{CheckOracleEndpoint}, rep.Failed)

	rep = ValidateConfig(validConfig(), proberCaller, nil)
	assert.Equal(t, []Check{CheckOracleEndpoint}, rep.Failed)
}

func TestValidateConfigNil(t *testing.T) {
	rep := ValidateConfig(nil, proberCaller, nil)
	assert.Equal(t, AllChecks, rep.Failed)
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Report: Report{Failed: []Check{CheckSubscription}}}
	assert.Contains(t, err.Error(), "configuration invalid")
	assert.Contains(t, err.Error(), "subscription_id")
}
