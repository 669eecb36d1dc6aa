package ingest

import (
	"errors"
	"sync"
)

var ErrNotInitialized = errors.New("ingestion client is not initialized")

var (
	instanceMu sync.Mutex
	instance   *Client
)

// Init constructs the process-wide client. Later calls return the
// existing client and ignore their arguments.
func Init(cfg Config, opts ...Option) (*Client, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return instance, nil
	}

	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	instance = c
	return c, nil
}

// Instance returns the process-wide client or ErrNotInitialized.
func Instance() (*Client, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// Current returns the process-wide client, or nil before Init.
func Current() *Client {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

func release(c *Client) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == c {
		instance = nil
	}
}
