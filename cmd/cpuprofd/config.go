package main

import (
	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
		SentryDSN   string `env:"SENTRY_DSN"`
		LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
		Port        string `env:"PORT" env-default:"8080"`

		// BlobURL selects a gocloud bucket (file:// or mem://) instead of GCS.
		BlobURL        string `env:"CPUPROF_BLOB_URL"`
		ProfilesBucket string `env:"CPUPROF_PROFILES_BUCKET" env-default:"sentry-profiles"`

		KafkaBrokers        []string `env:"CPUPROF_KAFKA_BROKERS" env-separator:","`
		CallTreesKafkaTopic string   `env:"CPUPROF_CALL_TREES_KAFKA_TOPIC" env-default:"profiles-call-tree"`
		FunctionsKafkaTopic string   `env:"CPUPROF_FUNCTIONS_KAFKA_TOPIC" env-default:"profiles-functions"`

		KeepNatives bool `env:"CPUPROF_KEEP_NATIVES" env-default:"false"`
	}
)

func readServiceConfig() (ServiceConfig, error) {
	var c ServiceConfig
	if err := cleanenv.ReadEnv(&c); err != nil {
		return ServiceConfig{}, err
	}
	return c, nil
}
