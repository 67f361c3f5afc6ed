package config

// DefaultModel is the FLUX LoRA model used when REPLICATE_MODEL is unset.
const DefaultModel = "lucataco/flux-dev-lora:a22c463f11808638ad5e2ebd582e07a469031f48dd567366fb4c6fdab91d614d"

func Defaults() *Config {
	return &Config{
		Replicate: ReplicateConfig{
			APIBase: "https://api.replicate.com/v1",
			Model:   DefaultModel,
		},
		Generation: GenerationConfig{
			TriggerWord: "VISHYFACE",
			DefaultAge:  "5",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Log: LogConfig{
			Level: "info",
		},
		History: HistoryConfig{
			Enabled:       false,
			DBPath:        "~/.memorylane/history.db",
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		AMQP: AMQPConfig{
			Exchange: "memorylane.events",
		},
	}
}
