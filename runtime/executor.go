package runtime

import (
	"fmt"

	"github.com/sbl8/sigflow/core"
)

// Outcome classifies one Invoke.
type Outcome int

const (
	OutcomeProduced Outcome = iota
	OutcomeNoOutput
	OutcomeDone
	OutcomeInputStarved
	OutcomeOutputStarved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProduced:
		return "produced"
	case OutcomeNoOutput:
		return "no-output"
	case OutcomeDone:
		return "done"
	case OutcomeInputStarved:
		return "input-starved"
	case OutcomeOutputStarved:
		return "output-starved"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// noOutputsItems stands in for the output space of a block without outputs.
const noOutputsItems = 1 << 30

// Result reports what one Invoke did.
type Result struct {
	Outcome Outcome
	// Port is the starved port for the starved outcomes, otherwise -1.
	Port int
	// NoutputItems is the negotiated item count offered to the block.
	NoutputItems int
	// Produced is the largest item count published on any output.
	Produced int
	Consumed []int
	// Attempts counts forecast calls.
	Attempts int
}

// negotiation is the outcome of choosing noutput_items for one call.
type negotiation struct {
	noutput  int
	starved  Outcome // OutcomeProduced when the call can proceed
	port     int
	attempts int
}

// negotiate picks the output item count for one call from the availability
// of every port. It never calls the block body.
func negotiate(rate *core.RateModel, lookback, availIn, availOut []int, forecast func(n int, required []int), required []int) negotiation {
	om := rate.OutputMultiple()

	// A fixed-rate block cannot run without one item past its history.
	if rate.FixedRate() {
		for i, avail := range availIn {
			if avail <= lookback[i] {
				return negotiation{starved: OutcomeInputStarved, port: i}
			}
		}
	}

	numInput := 0
	for i, avail := range availIn {
		usable := avail
		if rate.FixedRate() {
			usable -= lookback[i]
		}
		if i == 0 || usable < numInput {
			numInput = usable
		}
	}

	numOutput := noOutputsItems
	if len(availOut) > 0 {
		port := 0
		for o, space := range availOut {
			n := core.RoundDown(space, om)
			if o == 0 || n < numOutput {
				numOutput = n
				port = o
			}
		}
		if numOutput <= 0 {
			return negotiation{starved: OutcomeOutputStarved, port: port}
		}
	}

	if limit := rate.MaxNoutputItems(); limit > 0 {
		numOutput = min(numOutput, core.RoundUp(limit, om))
	}

	if len(availIn) > 0 && (rate.FixedRate() || len(availOut) == 0) {
		calc := core.CeilItems(float64(numInput)*rate.RelativeRate()/float64(om)) * om
		if calc > 0 && calc < numOutput {
			numOutput = calc
		}
	}

	n := rate.AlignItems(numOutput)
	for attempts := 1; ; attempts++ {
		forecast(n, required)
		short := -1
		for i, avail := range availIn {
			if required[i] > avail {
				short = i
				break
			}
		}
		if short < 0 {
			return negotiation{noutput: n, starved: OutcomeProduced, port: -1, attempts: attempts}
		}
		if n <= om {
			return negotiation{starved: OutcomeInputStarved, port: short, attempts: attempts}
		}
		n = rate.AlignItems(core.RoundUp(n/2, om))
	}
}

// Executor runs the calls of one bound processor against its ports.
type Executor struct {
	proc  Processor
	block *Block
	ins   []InputPort
	outs  []OutputPort

	lookback []int
	availIn  []int
	availOut []int
	required []int
	io       WorkIO
}

// NewExecutor attaches ports to a processor already bound to their counts.
func NewExecutor(p Processor, ins []InputPort, outs []OutputPort) (*Executor, error) {
	b := p.Base()
	if b.State() == core.StateConstructed {
		return nil, fmt.Errorf("block %s: executor needs a bound block", b.Alias())
	}
	if len(ins) != b.NumInputs() || len(outs) != b.NumOutputs() {
		return nil, fmt.Errorf("block %s: %w: bound %d/%d ports, got %d/%d",
			b.Alias(), core.ErrTopology, b.NumInputs(), b.NumOutputs(), len(ins), len(outs))
	}
	return &Executor{
		proc:     p,
		block:    b,
		ins:      ins,
		outs:     outs,
		lookback: make([]int, len(ins)),
		availIn:  make([]int, len(ins)),
		availOut: make([]int, len(outs)),
		required: make([]int, len(ins)),
		io: WorkIO{
			NinputItems: make([]int, len(ins)),
			Inputs:      make([][]byte, len(ins)),
			Outputs:     make([][]byte, len(outs)),
		},
	}, nil
}

// Block returns the processor's base block.
func (e *Executor) Block() *Block { return e.block }

// Start runs the processor's Start hook and marks the block active.
func (e *Executor) Start() error {
	if s, ok := e.proc.(Starter); ok {
		if err := s.Start(); err != nil {
			return fmt.Errorf("block %s start: %w", e.block.Alias(), err)
		}
	}
	e.block.setState(core.StateActive)
	return nil
}

// Stop runs the processor's Stop hook and marks the block inactive.
func (e *Executor) Stop() error {
	e.block.setState(core.StateInactive)
	if s, ok := e.proc.(Stopper); ok {
		if err := s.Stop(); err != nil {
			return fmt.Errorf("block %s stop: %w", e.block.Alias(), err)
		}
	}
	return nil
}

// Invoke negotiates one call, runs the block body and publishes its effects.
// Starvation is reported in the Result, never as an error.
func (e *Executor) Invoke() (Result, error) {
	b := e.block
	for i, in := range e.ins {
		e.availIn[i] = in.Available()
		e.lookback[i] = b.lookback(i)
	}
	for o, out := range e.outs {
		e.availOut[o] = out.Space()
	}

	neg := negotiate(&b.rate, e.lookback, e.availIn, e.availOut, e.proc.Forecast, e.required)
	if neg.starved != OutcomeProduced {
		return Result{Outcome: neg.starved, Port: neg.port, Attempts: neg.attempts}, nil
	}

	aligned := true
	e.io.NoutputItems = neg.noutput
	for i, in := range e.ins {
		e.io.NinputItems[i] = e.availIn[i]
		e.io.Inputs[i] = in.Window()[:e.availIn[i]*b.inputs[i].ItemSize]
		aligned = aligned && windowAligned(e.io.Inputs[i])
	}
	for o, out := range e.outs {
		need := neg.noutput * b.outputs[o].ItemSize
		w := out.Window()
		if len(w) < need {
			// Every reader of this output finished after Space was sampled.
			return Result{Outcome: OutcomeOutputStarved, Port: o, Attempts: neg.attempts}, nil
		}
		e.io.Outputs[o] = w[:need]
		aligned = aligned && windowAligned(e.io.Outputs[o])
	}
	e.io.Aligned = aligned

	b.beginCall(e.ins, e.outs)
	ret, err := e.proc.GeneralWork(&e.io)
	if err != nil {
		return Result{}, fmt.Errorf("block %s work: %w", b.Alias(), err)
	}

	produced, err := e.production(ret, neg.noutput)
	if err != nil {
		return Result{}, err
	}
	for i, n := range b.consumed {
		if limit := e.availIn[i] - e.lookback[i]; n < 0 || n > limit {
			return Result{}, fmt.Errorf("block %s: %w: consumed %d items on input %d, only %d available past its history",
				b.Alias(), core.ErrContract, n, i, limit)
		}
	}

	propagateTags(b, e.ins, e.outs, b.consumed)

	res := Result{
		Outcome:      OutcomeNoOutput,
		Port:         -1,
		NoutputItems: neg.noutput,
		Consumed:     append([]int(nil), b.consumed...),
		Attempts:     neg.attempts,
	}
	for i, in := range e.ins {
		in.Consume(b.consumed[i])
	}
	for o, out := range e.outs {
		out.Produce(produced[o])
		res.Produced = max(res.Produced, produced[o])
	}
	b.rate.AdvanceAlignment(res.Produced)

	switch {
	case ret == WorkDone:
		res.Outcome = OutcomeDone
	case res.Produced > 0:
		res.Outcome = OutcomeProduced
	case len(e.outs) == 0 && sum(res.Consumed) > 0:
		res.Outcome = OutcomeProduced
	}
	return res, nil
}

// production turns the work return value into per-output item counts.
func (e *Executor) production(ret, noutput int) ([]int, error) {
	b := e.block
	produced := make([]int, len(e.outs))
	switch {
	case ret == WorkDone:
		return produced, nil
	case ret == WorkCalledProduce:
		copy(produced, b.produced)
	case ret < 0:
		return nil, fmt.Errorf("block %s: %w: work returned %d", b.Alias(), core.ErrContract, ret)
	default:
		for o := range produced {
			produced[o] = ret
		}
	}
	for o, n := range produced {
		if n < 0 || n > noutput {
			return nil, fmt.Errorf("block %s: %w: produced %d items on output %d, offered %d",
				b.Alias(), core.ErrContract, n, o, noutput)
		}
	}
	return produced, nil
}

// InputWriterDone reports whether nothing more will arrive on input i.
func (e *Executor) InputWriterDone(i int) bool {
	if r, ok := e.ins[i].(*streamReader); ok {
		return r.s.writerDone.Load()
	}
	return false
}

// OutputReadersDone reports whether nobody reads output o anymore.
func (e *Executor) OutputReadersDone(o int) bool {
	if w, ok := e.outs[o].(*streamWriter); ok {
		return w.readersDone()
	}
	return false
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
