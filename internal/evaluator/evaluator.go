// Package evaluator defines the contract the engine consumes from
// evaluator implementations (decoder, histogram, neural-net runners,
// ...), which are themselves out of scope for this repository.
package evaluator

import "github.com/e7canasta/videobatch/internal/model"

// Config parameterizes one evaluator instance. The engine builds it
// before any video is known: MaxInputCount is the larger of the
// evaluate batch size and the planner's computed warmup size, and
// DeviceID comes from the evaluator's job config entry. MaxFrameWidth
// and MaxFrameHeight are left zero.
type Config struct {
	MaxInputCount int
	MaxFrameWidth int
	MaxFrameHeight int
	DeviceID int
}

// Evaluator is one stateful operator in the chain. Implementations must
// honor the contract in: for every output column c,
// len(outputs[c]) == B (the batch size), except when this evaluator is
// index 0 of its chain and the entry is a video-decode item, in which
// case the count may differ and B is redefined as len(outputs[0]).
type Evaluator interface {
	// Configure is called once per video (identified by VideoMetadata),
	// before any Evaluate call for that video.
	Configure(metadata model.VideoMetadata) error

	// Reset is called whenever the evaluate worker detects a stream
	// boundary (new video, or a forced SequenceGather boundary). It must
	// clear any cross-batch state the evaluator keeps.
	Reset() error

	// Evaluate consumes one batch of input buffers per column and
	// produces one batch of output buffers per column. Ownership of the
	// input buffers transfers to the evaluator: the evaluate worker does
	// not free them after the call, so an evaluator either returns them
	// as outputs or frees them itself.
	Evaluate(inputs [][]model.Buffer) (outputs [][]model.Buffer, err error)

	// OutputNames lists the column names this evaluator produces, in
	// the order Evaluate returns them.
	OutputNames() []string
}

// Factory constructs Evaluator instances and advertises their static
// capabilities without needing to instantiate one.
type Factory interface {
	Capabilities() model.EvaluatorCapabilities
	New(cfg Config) (Evaluator, error)
}
