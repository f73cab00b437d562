package main

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func validTestConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			PrivKey:      "0x0123",
			Rpc:          []string{"http://localhost:8545"},
			ExchangeAddr: "0x1111111111111111111111111111111111111111",
			TokensFile:   "tokens.json",
		},
		Cache: CacheConfig{Encoding: "json"},
	}
}

func TestValidateConfig(t *testing.T) {
	c := qt.New(t)
	c.Assert(validateConfig(validTestConfig()), qt.IsNil)

	cfg := validTestConfig()
	cfg.Chain.PrivKey = ""
	c.Assert(validateConfig(cfg), qt.ErrorMatches, "private key is required.*")

	cfg = validTestConfig()
	cfg.Chain.Rpc = nil
	c.Assert(validateConfig(cfg), qt.ErrorMatches, "at least one chain rpc endpoint is required")

	cfg = validTestConfig()
	cfg.Chain.ExchangeAddr = "not-an-address"
	c.Assert(validateConfig(cfg), qt.ErrorMatches, "invalid exchange contract address.*")

	cfg = validTestConfig()
	cfg.Cache.Encoding = "msgpack"
	c.Assert(validateConfig(cfg), qt.ErrorMatches, `unknown cache encoding "msgpack".*`)
}

func TestValidateConfigBundleSigner(t *testing.T) {
	c := qt.New(t)

	// enabling builders without a dedicated request-signing key is rejected;
	// the trading key is never used for builder signatures
	cfg := validTestConfig()
	cfg.Builders.Rpc = []string{"https://relay.flashbots.net"}
	c.Assert(validateConfig(cfg), qt.ErrorMatches, "builder bundling requires a dedicated request-signing key.*")

	cfg.Builders.SignerKey = "0x4567"
	c.Assert(validateConfig(cfg), qt.IsNil)
}
