package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Log this instead of the live config.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Exchange.ApiKey)
	redact(&out.Exchange.ApiSecret)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Instruments.Constituents = append([]string(nil), cfg.Instruments.Constituents...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	if cfg.Exchange.PaperPositions != nil {
		out.Exchange.PaperPositions = make(map[string]int64, len(cfg.Exchange.PaperPositions))
		for k, v := range cfg.Exchange.PaperPositions {
			out.Exchange.PaperPositions[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
