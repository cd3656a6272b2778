// Package builtin provides the minimal evaluator factories
// cmd/batchengine registers out of the box. Real evaluator
// implementations (codecs, histogram/feature extractors, model
// runners) are out of scope for this repository; what
// lives here is just enough to run a job end to end against byte-
// oriented raw storage without requiring a deployment to bring its own
// decoder for a smoke test.
package builtin

import (
	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/evaluator"
	"github.com/e7canasta/videobatch/internal/model"
)

// Registry returns the built-in factories keyed by the name a job
// config's evaluators[].name references.
func Registry() map[string]evaluator.Factory {
	return map[string]evaluator.Factory{
		"raw_decoder": RawByteDecoderFactory{},
		"passthrough": PassthroughFactory{},
	}
}

// RawByteDecoderFactory builds decoders for raw, uncompressed storage:
// the keyframe-aligned byte range is cut into frames of Width*Height
// bytes each (one byte per frame when the metadata carries no
// dimensions), and any trailing partial frame is dropped — the
// degenerate case of the keyframe model where every frame is its own
// keyframe. It does not interpret DecodeArgs.Interval/Stride/Points:
// every whole frame in the fetched range is emitted, which matches the
// requested frames only when the caller set up keyframes at the
// planner's chunk boundaries.
type RawByteDecoderFactory struct{}

func (RawByteDecoderFactory) Capabilities() model.EvaluatorCapabilities {
	return model.EvaluatorCapabilities{
		DeviceType: model.CPU,
		CanOverlap: true,
		ProducesVariableOutputCount: true,
	}
}

func (RawByteDecoderFactory) New(evaluator.Config) (evaluator.Evaluator, error) {
	return &rawByteDecoder{}, nil
}

type rawByteDecoder struct {
	frameSize int
}

func (d *rawByteDecoder) Configure(meta model.VideoMetadata) error {
	d.frameSize = meta.Width * meta.Height
	if d.frameSize <= 0 {
		d.frameSize = 1
	}
	return nil
}

func (d *rawByteDecoder) Reset() error { return nil }

func (d *rawByteDecoder) Evaluate(inputs [][]model.Buffer) ([][]model.Buffer, error) {
	if len(inputs) == 0 {
		return nil, enginerr.EvaluatorContractViolationf("builtin: raw_decoder expects an encoded-bytes column")
	}
	var frames []model.Buffer
	for _, row := range inputs[0] {
		n := len(row.Data) / d.frameSize
		for i := 0; i < n; i++ {
			start := i * d.frameSize
			frames = append(frames, model.NewCPUBuffer(append([]byte(nil), row.Data[start:start+d.frameSize]...)))
		}
		row.Free()
	}
	return [][]model.Buffer{frames}, nil
}

func (d *rawByteDecoder) OutputNames() []string { return []string{"frame"} }

// PassthroughFactory builds an evaluator that copies its single input
// column straight to its single output column, unchanged. Useful as a
// demo middle/terminal stage and as the minimal evaluator for smoke
// tests that only care about pipeline plumbing, not evaluator logic.
type PassthroughFactory struct{}

func (PassthroughFactory) Capabilities() model.EvaluatorCapabilities {
	return model.EvaluatorCapabilities{DeviceType: model.CPU, CanOverlap: true}
}

func (PassthroughFactory) New(evaluator.Config) (evaluator.Evaluator, error) {
	return passthrough{}, nil
}

type passthrough struct{}

func (passthrough) Configure(model.VideoMetadata) error { return nil }
func (passthrough) Reset() error { return nil }

func (passthrough) Evaluate(inputs [][]model.Buffer) ([][]model.Buffer, error) {
	if len(inputs) == 0 {
		return nil, enginerr.EvaluatorContractViolationf("builtin: passthrough expects at least one input column")
	}
	return inputs[:1], nil
}

func (passthrough) OutputNames() []string { return []string{"frame"} }
