package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "OFFLINESYNC_"

type envBinding struct {
	key   string
	apply func(v string) error
}

func applyEnv(cfg *Config) error {
	bindings := []envBinding{
		{"STORE_DRIVER", setString(&cfg.Store.Driver)},
		{"STORE_PATH", setString(&cfg.Store.Path)},
		{"STORE_DSN", setString(&cfg.Store.DSN)},
		{"HTTP_ADDR", setString(&cfg.HTTP.Addr)},
		{"SENDER_MODE", setString(&cfg.Sender.Mode)},
		{"SENDER_URL", setString(&cfg.Sender.URL)},
		{"SENDER_TIMEOUT", setDuration(&cfg.Sender.Timeout)},
		{"SENDER_RATE_LIMIT", setFloat(&cfg.Sender.RateLimit)},
		{"SENDER_RATE_BURST", setInt(&cfg.Sender.RateBurst)},
		{"SENDER_BREAKER_ENABLED", setBool(&cfg.Sender.BreakerEnabled)},
		{"SENDER_BREAKER_FAILURE_THRESHOLD", setInt(&cfg.Sender.BreakerFailureThreshold)},
		{"SENDER_BREAKER_RECOVERY_TIME", setDuration(&cfg.Sender.BreakerRecoveryTime)},
		{"SENDER_SIMULATED_FAIL_EVERY", setInt(&cfg.Sender.SimulatedFailEvery)},
		{"NETWORK_MODE", setString(&cfg.Network.Mode)},
		{"NETWORK_PROBE_URL", setString(&cfg.Network.ProbeURL)},
		{"NETWORK_PROBE_INTERVAL", setDuration(&cfg.Network.ProbeInterval)},
		{"NETWORK_PROBE_TIMEOUT", setDuration(&cfg.Network.ProbeTimeout)},
		{"NETWORK_ONLINE", setBool(&cfg.Network.Online)},
		{"SYNC_MAX_RETRY", setInt(&cfg.Sync.MaxRetry)},
		{"SYNC_RESYNC_INTERVAL", setDuration(&cfg.Sync.ResyncInterval)},
		{"LOG_LEVEL", setString(&cfg.Log.Level)},
		{"LOG_FORMAT", setString(&cfg.Log.Format)},
	}

	for _, b := range bindings {
		v, ok := os.LookupEnv(envPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(v); err != nil {
			return fmt.Errorf("env %s%s: %w", envPrefix, b.key, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
