package gemini

import "time"

// Config for the Gemini parser client.
type Config struct {
	ProjectID   string
	Region      string        // default us-central1
	Model       string        // e.g. "gemini-1.5-flash"
	Temperature float32       // 0 for deterministic structured output
	Timeout     time.Duration // per-call deadline
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = "us-central1"
	}
	if c.Model == "" {
		c.Model = "gemini-1.5-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}
