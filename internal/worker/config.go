package worker

type Config struct {
	NumWorkers int `yaml:"num_workers"`
	// QueueSize bounds the in-memory queue; ignored for redpanda.
	QueueSize int `yaml:"queue_size"`
}
