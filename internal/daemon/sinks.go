package daemon

import (
	"strings"

	"dynq/internal/config"
	"dynq/internal/events"
)

func buildSinks(cfg *config.Config) []events.Sink {
	var sinks []events.Sink
	if brokers := nonEmpty(cfg.Events.KafkaBrokers); len(brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(brokers, cfg.Events.KafkaTopic))
	}
	if addr := strings.TrimSpace(cfg.Events.RedisAddr); addr != "" {
		sinks = append(sinks, events.NewRedisSink(events.NewRedisClient(addr), cfg.Events.RedisChannel))
	}
	return sinks
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
