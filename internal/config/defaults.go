package config

const (
	defaultConfigPath         = "~/.config/dynq/config.toml"
	defaultDataDir            = "~/.local/share/dynq"
	defaultLogDir             = "~/.local/share/dynq/logs"
	defaultAPIBind            = "127.0.0.1:7488"
	defaultMaxConcurrent      = 3
	defaultBatchSize          = 50
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultKafkaTopic         = "dynq.queue.item_completed"
	defaultRedisChannel       = "dynq:queue:item_completed"
	defaultServiceName        = "dynq"
	defaultEnvTimeoutSeconds  = 120
	defaultEnvMaxAttempts     = 3
	apiTokenEnv               = "DYNQ_API_TOKEN"
	maxConcurrentUpperBound   = 64
	batchSizeUpperBound       = 1000
	envTimeoutUpperBoundHours = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			MaxConcurrent: defaultMaxConcurrent,
			BatchSize:     defaultBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Events: Events{
			KafkaTopic:   defaultKafkaTopic,
			RedisChannel: defaultRedisChannel,
		},
		Telemetry: Telemetry{
			ServiceName:    defaultServiceName,
			MetricsEnabled: true,
		},
	}
}
