package chain

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func validOptions() Options {
	return Options{
		RPCURL:         "http://localhost:8545",
		ChainID:        1,
		PrivateKey:     testKey,
		EngineAddress:  "0x0000000000000000000000000000000000000001",
		OracleAddress:  "0x0000000000000000000000000000000000000002",
		TokenAddress:   "0x0000000000000000000000000000000000000003",
		RequestTimeout: time.Second,
	}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing rpc url", func(o *Options) { o.RPCURL = "" }},
		{"missing chain id", func(o *Options) { o.ChainID = 0 }},
		{"bad engine address", func(o *Options) { o.EngineAddress = "not-an-address" }},
		{"bad oracle address", func(o *Options) { o.OracleAddress = "" }},
		{"bad token address", func(o *Options) { o.TokenAddress = "0x123" }},
		{"bad private key", func(o *Options) { o.PrivateKey = "zz" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.mutate(&opts)
			if _, err := New(opts, zerolog.Nop()); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestNewDerivesOwnAddress(t *testing.T) {
	client, err := New(validOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.OwnAddress() == "" {
		t.Fatal("own address should be derived from the private key")
	}
}
