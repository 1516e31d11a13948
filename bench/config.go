package bench

import (
	"fmt"
	"math/bits"

	"github.com/weiihann/synthbench/buffer"
	"github.com/weiihann/synthbench/workload"
)

// DefaultCacheLineSize is the line size assumed by the working-set
// estimate unless configured otherwise.
const DefaultCacheLineSize = 64

// Variant names a benchmark traversal policy.
type Variant string

const (
	VariantRandom  Variant = "randpd"
	VariantStrided Variant = "rpd"
	VariantSpin    Variant = "spin"
)

// Variants lists every supported variant.
func Variants() []Variant {
	return []Variant{VariantRandom, VariantStrided, VariantSpin}
}

// ParseVariant parses a variant name.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}

	return "", configErrorf("unknown variant %q", s)
}

// Config is the validated description of one benchmark run.
type Config struct {
	Variant Variant

	ArraySize uint64

	// randpd
	Accesses uint64
	Seed     uint64

	// rpd
	Stride        uint64
	Repetitions   uint64
	OuterLoop     bool
	CacheLineSize uint64

	// spin
	SpinCount uint64

	Delay uint64
	Init  bool
	Pages buffer.Mode

	// CPU is the hardware thread to pin to, or -1.
	CPU int
}

// UsesBuffer reports whether the variant needs a work buffer.
func (c Config) UsesBuffer() bool {
	return c.Variant != VariantSpin
}

// Validate checks c and returns an error wrapping ErrConfig.
func (c Config) Validate() error {
	switch c.Variant {
	case VariantRandom, VariantStrided:
		if c.ArraySize == 0 {
			return configErrorf("array size must be positive")
		}

		if c.ArraySize > buffer.MaxElements {
			return configErrorf(
				"array size %d exceeds the maximum of %d elements",
				c.ArraySize, uint64(buffer.MaxElements),
			)
		}

	case VariantSpin:

	default:
		return configErrorf("unknown variant %q", c.Variant)
	}

	if c.Variant == VariantStrided {
		if c.Stride == 0 {
			return configErrorf("stride must be positive")
		}

		if c.Stride > c.ArraySize {
			return configErrorf(
				"stride %d exceeds array size %d", c.Stride, c.ArraySize,
			)
		}

		if c.CacheLineSize == 0 {
			return configErrorf("cache line size must be positive")
		}
	}

	if _, ok := c.expectedTotal(); !ok {
		return configErrorf("total work overflows a 64-bit counter")
	}

	return nil
}

// Policy validates c and builds its traversal policy.
func (c Config) Policy() (workload.Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Variant {
	case VariantRandom:
		return workload.NewRandom(c.ArraySize, c.Accesses, c.Seed), nil
	case VariantStrided:
		return workload.NewStrided(
			c.ArraySize, c.Stride, c.Repetitions, c.OuterLoop,
		), nil
	default:
		return workload.NewSpin(c.SpinCount), nil
	}
}

// expectedTotal computes init plus access steps, reporting false on
// overflow. Strided arithmetic divides by Stride, so callers check it
// first.
func (c Config) expectedTotal() (uint64, bool) {
	switch c.Variant {
	case VariantRandom:
		return addOK(c.ArraySize, c.Accesses)

	case VariantStrided:
		if c.Stride == 0 {
			return 0, false
		}

		pass := c.ArraySize / c.Stride

		outer := uint64(1)
		if c.OuterLoop {
			outer = c.Stride
		}

		passes, ok := mulOK(c.Repetitions, outer)
		if !ok {
			return 0, false
		}

		steps, ok := mulOK(passes, pass)
		if !ok {
			return 0, false
		}

		return addOK(pass, steps)

	default:
		return c.SpinCount, true
	}
}

func addOK(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)

	return sum, carry == 0
}

func mulOK(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)

	return lo, hi == 0
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
