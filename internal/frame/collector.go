package frame

import (
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Collector accumulates frames pushed incrementally by a generation-job
// notifier. A change in job identifier starts a fresh sequence instead of
// concatenating unrelated frames.
type Collector struct {
	mu    sync.Mutex
	jobID string
	seq   Sequence
	log   zerolog.Logger
}

// NewCollector returns an empty collector.
func NewCollector(log zerolog.Logger) *Collector {
	return &Collector{log: log.With().Str("component", "collector").Logger()}
}

// Push appends a batch of images reported for the given job. If jobID is
// empty a fresh one is assigned. If jobID differs from the current job, the
// collector discards the accumulated sequence and starts over.
func (c *Collector) Push(jobID string, prompt string, images []image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if jobID == "" {
		jobID = uuid.NewString()
	}
	if jobID != c.jobID {
		if c.jobID != "" {
			c.log.Info().
				Str("previous_job", c.jobID).
				Str("job", jobID).
				Int("dropped_frames", len(c.seq.Frames)).
				Msg("new job id, starting fresh sequence")
		}
		c.jobID = jobID
		c.seq = Sequence{
			Meta: Metadata{
				SourceJobID: jobID,
				Prompt:      prompt,
				GeneratedAt: time.Now(),
			},
		}
	}
	for _, img := range images {
		c.seq.Frames = append(c.seq.Frames, FromImage(img))
	}
}

// JobID returns the identifier of the job currently being collected.
func (c *Collector) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobID
}

// Sequence returns a snapshot of the collected sequence. The returned value
// is independent of later pushes.
func (c *Collector) Sequence() Sequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]Frame, len(c.seq.Frames))
	copy(frames, c.seq.Frames)
	return Sequence{Frames: frames, Meta: c.seq.Meta}
}
