package counter

import "log/slog"

const commandQueueSize = 16

type command int

const (
	cmdReset command = iota
	cmdToggleSwap
	cmdQuit
)

func (c command) String() string {
	switch c {
	case cmdReset:
		return "reset"
	case cmdToggleSwap:
		return "swap"
	case cmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Reset zeroes the counts and forgets all positions and cooldowns at the start
// of the next cycle.
func (c *Counter) Reset() error { return c.enqueue(cmdReset) }

// ToggleSwap flips the IN/OUT mapping at the start of the next cycle.
func (c *Counter) ToggleSwap() error { return c.enqueue(cmdToggleSwap) }

// Quit stops Run at the start of the next cycle.
func (c *Counter) Quit() error { return c.enqueue(cmdQuit) }

func (c *Counter) enqueue(cmd command) error {
	select {
	case c.commands <- cmd:
		commandsTotal.WithLabelValues(cmd.String()).Inc()
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (c *Counter) applyCommands() {
	for {
		select {
		case cmd := <-c.commands:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Counter) apply(cmd command) {
	switch cmd {
	case cmdReset:
		c.ledger.Reset()
		c.detector.Forget()
		c.publishSnapshot(c.ledger.Snapshot(c.clock.Now()))
		slog.Info("Counts reset")
	case cmdToggleSwap:
		swap := c.ledger.ToggleSwap()
		c.publishSnapshot(c.ledger.Snapshot(c.clock.Now()))
		slog.Info("Direction mapping toggled", "swap", swap)
	case cmdQuit:
		c.quit = true
	}
}
