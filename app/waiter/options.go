package waiter

import (
	"os"
	"syscall"
)

type Option func(*waiterCfg)

type waiterCfg struct {
	signals []os.Signal
}

func defaultConfig() waiterCfg {
	return waiterCfg{signals: []os.Signal{os.Interrupt, syscall.SIGTERM}}
}

// WithSignals replaces the signals that cancel the waiter. No signals
// disables signal handling.
func WithSignals(signals ...os.Signal) Option {
	return func(cfg *waiterCfg) {
		cfg.signals = signals
	}
}
