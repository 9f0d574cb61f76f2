package runtime

import (
	"fmt"

	"github.com/sbl8/sigflow/core"
)

// SyncWorker is a block whose inputs and outputs move in a fixed ratio.
// Work returns the items produced on every output; consumption follows
// from the ratio.
type SyncWorker interface {
	Base() *Block
	Work(io *WorkIO) (int, error)
}

// syncBlock adapts a SyncWorker to Processor.
type syncBlock struct {
	w SyncWorker
}

// NewSync wraps w as a 1:1 fixed-rate processor.
func NewSync(w SyncWorker) Processor {
	w.Base().SetFixedRate(true)
	return &syncBlock{w: w}
}

// NewSyncDecimator wraps w as a fixed-rate processor consuming d inputs per output.
func NewSyncDecimator(w SyncWorker, d int) (Processor, error) {
	p := NewSync(w)
	if err := w.Base().SetDecimation(d); err != nil {
		return nil, fmt.Errorf("sync decimator: %w", err)
	}
	return p, nil
}

// NewSyncInterpolator wraps w as a fixed-rate processor producing i outputs per input.
func NewSyncInterpolator(w SyncWorker, i int) (Processor, error) {
	p := NewSync(w)
	if err := w.Base().SetInterpolation(i); err != nil {
		return nil, fmt.Errorf("sync interpolator: %w", err)
	}
	return p, nil
}

// Unwrap returns the wrapped worker.
func (s *syncBlock) Unwrap() SyncWorker { return s.w }

func (s *syncBlock) Base() *Block { return s.w.Base() }

func (s *syncBlock) Forecast(noutput int, required []int) {
	if f, ok := s.w.(interface{ Forecast(int, []int) }); ok {
		f.Forecast(noutput, required)
		return
	}
	s.w.Base().Forecast(noutput, required)
}

// GeneralWork runs the worker and consumes round(produced/rate) on every input.
func (s *syncBlock) GeneralWork(io *WorkIO) (int, error) {
	b := s.w.Base()
	r, err := s.w.Work(io)
	if err != nil || r <= 0 {
		return r, err
	}
	if rate := b.RelativeRate(); rate > 0 {
		b.ConsumeEach(core.RoundHalfUp(float64(r) / rate))
	}
	return r, nil
}

func (s *syncBlock) FixedRateNoutputToNinput(noutput int) (int, error) {
	b := s.w.Base()
	if b.RelativeRate() == 0 {
		return 0, core.ErrNotImplemented
	}
	return core.RoundHalfUp(float64(noutput)/b.RelativeRate()) + b.lookback(0), nil
}

func (s *syncBlock) FixedRateNinputToNoutput(ninput int) (int, error) {
	b := s.w.Base()
	n := ninput - b.lookback(0)
	if n <= 0 {
		return 0, nil
	}
	return core.RoundHalfUp(float64(n) * b.RelativeRate()), nil
}

func (s *syncBlock) CheckTopology(ninputs, noutputs int) error {
	if tc, ok := s.w.(TopologyChecker); ok {
		return tc.CheckTopology(ninputs, noutputs)
	}
	return nil
}

func (s *syncBlock) Start() error {
	if st, ok := s.w.(Starter); ok {
		return st.Start()
	}
	return nil
}

func (s *syncBlock) Stop() error {
	if st, ok := s.w.(Stopper); ok {
		return st.Stop()
	}
	return nil
}
