package config

import (
	"fmt"
	"math/big"
	"strings"

	"paysplit/crypto"
	"paysplit/native/common"
	"paysplit/native/split"
)

// Validate checks the loaded configuration for values the daemon cannot run
// with.
func Validate(c *Config) error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		return fmt.Errorf("OpsAddress must not be empty")
	}
	if c.RPCAddress == c.OpsAddress {
		return fmt.Errorf("RPCAddress and OpsAddress must differ")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if _, err := split.ParsePolicy(c.ReleasePolicy); err != nil {
		return err
	}
	if strings.TrimSpace(c.OperatorAddress) != "" {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(c.OperatorAddress)); err != nil {
			return fmt.Errorf("invalid OperatorAddress: %w", err)
		}
	}
	for _, module := range c.PausedModules {
		if module != split.ModuleName {
			return fmt.Errorf("unknown module %q in PausedModules", module)
		}
	}
	if _, err := c.QuotaLimits(); err != nil {
		return err
	}
	return nil
}

// QuotaLimits parses the configured deposit quota into runtime values.
func (c *Config) QuotaLimits() (common.Quota, error) {
	quota := common.Quota{
		MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
		EpochSeconds:        c.Quota.EpochSeconds,
	}
	raw := strings.TrimSpace(c.Quota.MaxAmountPerEpoch)
	if raw != "" {
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok || amount.Sign() < 0 {
			return common.Quota{}, fmt.Errorf("invalid Quota.MaxAmountPerEpoch %q", c.Quota.MaxAmountPerEpoch)
		}
		quota.MaxAmountPerEpoch = amount
	}
	if quota.Enabled() && quota.EpochSeconds == 0 {
		return common.Quota{}, fmt.Errorf("Quota.EpochSeconds must be set when a quota limit is enabled")
	}
	return quota, nil
}
