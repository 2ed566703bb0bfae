package frame

import "time"

// Metadata is optional provenance attached to a sequence: which generation
// job produced it, with what prompt and seed, and when. Purely descriptive;
// nothing in the pipeline changes behavior based on it.
type Metadata struct {
	SourceJobID string            `yaml:"source_job_id,omitempty"`
	Prompt      string            `yaml:"prompt,omitempty"`
	Seed        int64             `yaml:"seed,omitempty"`
	Model       string            `yaml:"model,omitempty"`
	GeneratedAt time.Time         `yaml:"generated_at,omitempty"`
	Extra       map[string]string `yaml:"extra,omitempty"`
}
