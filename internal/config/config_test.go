package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty signing key",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			err:  true,
		},
		{
			name: "signing key is not base64",
			addr: addr,
			dsn:  dsn,
			key:  "not base64!!!",
			orig: orig,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected an error creating config")
				assert.Nil(t, cfg, "expected config to be nil on error")
				return
			}

			assert.NoError(t, err, "expected no error creating config")
			assert.Equal(t, tc.addr, cfg.ServerAddr)
			assert.Equal(t, tc.dsn, cfg.DatabaseDSN)
			assert.Equal(t, []byte("some_secret"), cfg.SigningKey, "expected signing key decoded from base64")
			assert.Equal(t, tc.orig, cfg.AllowedOrigins)
		})
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CONVO_TEST_VALUE", "from-env")
	assert.Equal(t, "from-env", EnvOr("CONVO_TEST_VALUE", "fallback"))

	t.Setenv("CONVO_TEST_VALUE", "")
	assert.Equal(t, "fallback", EnvOr("CONVO_TEST_VALUE", "fallback"), "expected empty value to fall through")

	assert.Equal(t, "fallback", EnvOr("CONVO_TEST_UNSET", "fallback"))
}
