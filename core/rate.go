package core

import "fmt"

// LargeOutputMultiple is the output multiple above which an input reserve is
// derived even for blocks without a fixed rate.
const LargeOutputMultiple = 1024

// RateModel captures the relationship between a block's input and output item
// counts together with its batching and lookback constraints.
//
// The zero value is not usable; construct with NewRateModel.
type RateModel struct {
	relativeRate    float64
	fixedRate       bool
	lookback        int // history - 1
	outputMultiple  int
	interpolation   int
	decimation      int
	maxNoutputItems int // 0 means unset
	alignment       int

	outputMultipleSet bool
	isUnaligned       bool
	unaligned         int // items left until output is realigned
}

// NewRateModel returns a 1:1 model with history 1 and output multiple 1.
func NewRateModel() RateModel {
	return RateModel{
		relativeRate:   1.0,
		outputMultiple: 1,
		interpolation:  1,
		decimation:     1,
		alignment:      1,
	}
}

// RelativeRate returns outputs produced per input consumed.
func (r *RateModel) RelativeRate() float64 { return r.relativeRate }

// FixedRate reports whether the block declared a strict input/output ratio.
func (r *RateModel) FixedRate() bool { return r.fixedRate }

// History returns the number of items a call sees per produced item, lookback + 1.
func (r *RateModel) History() int { return r.lookback + 1 }

// Lookback returns the number of past items kept behind the read cursor.
func (r *RateModel) Lookback() int { return r.lookback }

// OutputMultiple returns the granularity every output count is rounded to.
func (r *RateModel) OutputMultiple() int { return r.outputMultiple }

// Interpolation returns the integer upsampling factor.
func (r *RateModel) Interpolation() int { return r.interpolation }

// Decimation returns the integer downsampling factor.
func (r *RateModel) Decimation() int { return r.decimation }

// MaxNoutputItems returns the per-call output cap, 0 if unset.
func (r *RateModel) MaxNoutputItems() int { return r.maxNoutputItems }

// Alignment returns the preferred output alignment in items.
func (r *RateModel) Alignment() int { return r.alignment }

// OutputMultipleSet reports whether an output multiple was requested
// explicitly. Alignment is ignored once it has been.
func (r *RateModel) OutputMultipleSet() bool { return r.outputMultipleSet }

// Unaligned reports whether the output stream is off its alignment boundary.
func (r *RateModel) Unaligned() bool { return r.isUnaligned }

// UnalignedItems returns how many items remain until the output realigns.
func (r *RateModel) UnalignedItems() int { return r.unaligned }

// SetRelativeRate sets outputs per input. Zero is accepted and disables
// reserve derivation.
func (r *RateModel) SetRelativeRate(rate float64) error {
	if rate < 0 || rate != rate {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	r.relativeRate = rate
	return nil
}

// SetFixedRate marks the ratio as strict.
func (r *RateModel) SetFixedRate(fixed bool) { r.fixedRate = fixed }

// SetHistory stores history h as lookback h-1. h == 0 is treated as 1.
func (r *RateModel) SetHistory(h int) error {
	if h < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistory, h)
	}
	if h == 0 {
		h = 1
	}
	r.lookback = h - 1
	return nil
}

// SetOutputMultiple sets the output granularity, m >= 1.
func (r *RateModel) SetOutputMultiple(m int) error {
	if m < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidOutputMultiple, m)
	}
	r.outputMultiple = m
	r.outputMultipleSet = true
	return nil
}

// SetInterpolation sets relative rate i and output multiple i.
func (r *RateModel) SetInterpolation(i int) error {
	if i < 1 {
		return fmt.Errorf("%w: interpolation %d", ErrInvalidRate, i)
	}
	r.interpolation = i
	r.decimation = 1
	r.relativeRate = float64(i)
	r.outputMultiple = i
	r.outputMultipleSet = true
	return nil
}

// SetDecimation sets relative rate 1/d.
func (r *RateModel) SetDecimation(d int) error {
	if d < 1 {
		return fmt.Errorf("%w: decimation %d", ErrInvalidRate, d)
	}
	r.decimation = d
	r.interpolation = 1
	r.relativeRate = 1.0 / float64(d)
	return nil
}

// SetMaxNoutputItems caps the items offered to one call. m must be > 0.
func (r *RateModel) SetMaxNoutputItems(m int) error {
	if m <= 0 {
		return fmt.Errorf("%w: max noutput items %d", ErrInvalidOutputMultiple, m)
	}
	r.maxNoutputItems = m
	return nil
}

// UnsetMaxNoutputItems removes the per-call cap.
func (r *RateModel) UnsetMaxNoutputItems() { r.maxNoutputItems = 0 }

// SetAlignment sets the preferred output alignment in items, a >= 1.
func (r *RateModel) SetAlignment(a int) error {
	if a < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, a)
	}
	r.alignment = a
	r.isUnaligned = false
	r.unaligned = 0
	return nil
}

func (r *RateModel) aligning() bool {
	return r.alignment > 1 && !r.outputMultipleSet
}

// AlignItems trims n so that a call ends on an alignment boundary. An
// unaligned stream first gets the items that realign it; a count shorter
// than one alignment is left alone.
func (r *RateModel) AlignItems(n int) int {
	if !r.aligning() {
		return n
	}
	a := r.alignment
	if r.isUnaligned {
		if n >= r.unaligned {
			return r.unaligned + RoundDown(n-r.unaligned, a)
		}
		return n
	}
	if n >= a {
		return RoundDown(n, a)
	}
	return n
}

// AdvanceAlignment records that produced items were written and updates the
// distance to the next alignment boundary.
func (r *RateModel) AdvanceAlignment(produced int) {
	if !r.aligning() || produced <= 0 {
		return
	}
	a := r.alignment
	left := r.unaligned
	if !r.isUnaligned {
		left = 0
	}
	left = ((left-produced)%a + a) % a
	r.unaligned = left
	r.isUnaligned = left != 0
}

// NeedsInputReserve reports whether an input reserve should be derived.
func (r *RateModel) NeedsInputReserve() bool {
	return r.fixedRate || r.outputMultiple > LargeOutputMultiple
}

// InputReserve derives the input window needed to produce one output
// multiple. convert may be nil; when it is set and succeeds on a fixed-rate
// model its answer wins over the ratio. The boolean is false when no reserve
// should be written.
func (r *RateModel) InputReserve(convert func(noutput int) (int, error)) (int, bool) {
	if !r.NeedsInputReserve() {
		return 0, false
	}
	if r.fixedRate && convert != nil {
		if n, err := convert(r.outputMultiple); err == nil {
			return n, n > 0
		}
	}
	if r.relativeRate == 0 {
		return 0, false
	}
	reserve := RoundHalfUp(float64(r.outputMultiple) / r.relativeRate)
	return reserve, reserve > 0
}

// FixedRateItems is the default forecast of a fixed-rate block: the inputs
// needed for noutput items, lookback included.
func (r *RateModel) FixedRateItems(noutput, lookback int) int {
	if r.relativeRate == 0 {
		return lookback
	}
	return RoundHalfUp(float64(noutput)/r.relativeRate) + lookback
}
