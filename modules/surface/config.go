package surface

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfBounds is returned for an update outside the configured
	// resolution. Coordinates are never clamped.
	ErrOutOfBounds = errors.New("surface: coordinates out of bounds")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("surface: invalid config")
)

// Policy selects the per-event update rule.
type Policy int

const (
	// PolicyExponential accumulates with exponential temporal decay:
	// value = value*exp(-(t-last)/tau) + increment, over the kernel.
	PolicyExponential Policy = iota

	// PolicyTimeOrdered stamps the last event time of the event pixel only
	// (KernelSize is not used); the value read at time now is
	// ±exp(-(now-t)/tau). The raw time map is available from SnapshotTimes.
	PolicyTimeOrdered

	// PolicySpatialDecay multiplies the kernel neighbourhood by
	// 0.3^(1/kernel) and sets the event pixel to 255.
	PolicySpatialDecay

	// PolicySpeedInvariant decrements neighbours brighter than the event
	// pixel and sets it to kernel².
	PolicySpeedInvariant
)

var policyNames = map[Policy]string{
	PolicyExponential:    "exponential",
	PolicyTimeOrdered:    "time-ordered",
	PolicySpatialDecay:   "spatial-decay",
	PolicySpeedInvariant: "speed-invariant",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps a config name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("surface: unknown policy %q: %w", s, ErrInvalidConfig)
}

// PolarityMode controls whether event polarity biases the update sign.
type PolarityMode int

const (
	PolarityIgnored PolarityMode = iota
	PolaritySigned
)

func (m PolarityMode) String() string {
	if m == PolaritySigned {
		return "signed"
	}
	return "ignored"
}

// ParsePolarityMode maps "ignored" or "signed" to a PolarityMode.
func ParsePolarityMode(s string) (PolarityMode, error) {
	switch strings.ToLower(s) {
	case "", "ignored":
		return PolarityIgnored, nil
	case "signed":
		return PolaritySigned, nil
	}
	return 0, fmt.Errorf("surface: unknown polarity mode %q: %w", s, ErrInvalidConfig)
}

// Config fixes the surface arithmetic at construction time.
type Config struct {
	Width  int
	Height int

	// KernelSize is the side of the square neighbourhood touched by an
	// update (odd, >= 1).
	KernelSize int

	// DecayConstant is tau, in timestamp units (> 0).
	DecayConstant float64

	PolarityMode PolarityMode
	Policy       Policy

	// Increment added per event by PolicyExponential (default 1).
	Increment float64
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.KernelSize < 1 || c.KernelSize%2 == 0 {
		return fmt.Errorf("%w: kernel size must be odd and >= 1, got %d", ErrInvalidConfig, c.KernelSize)
	}
	if !(c.DecayConstant > 0) {
		return fmt.Errorf("%w: decay constant must be > 0, got %v", ErrInvalidConfig, c.DecayConstant)
	}
	if _, ok := policyNames[c.Policy]; !ok {
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidConfig, int(c.Policy))
	}
	if c.PolarityMode != PolarityIgnored && c.PolarityMode != PolaritySigned {
		return fmt.Errorf("%w: unknown polarity mode %d", ErrInvalidConfig, int(c.PolarityMode))
	}
	if c.Increment == 0 {
		c.Increment = 1
	}
	return nil
}
