// Package compute runs the four-stage cone geometry pipeline over
// texture-shaped buffers.
//
// A run is a fixed sequence of stages. Each stage maps its input buffers to
// an output buffer independently per row, so backends may parallelize
// freely inside a stage but must finish a stage before starting the next:
//
//	Positions       clocks, boundaries, elevations, limits, frames → positions
//	BoundingSphere  positions → spheres, points (positions + cap center)
//	RawNormals      points → raw normals
//	Normals         raw normals → normals
package compute

import (
	"errors"
	"fmt"
)

// Stage identifies one pass of the pipeline.
type Stage int

const (
	// StagePositions places every cone sample in display space.
	StagePositions Stage = iota
	// StageBoundingSphere reduces each row to a sphere and appends the cap center.
	StageBoundingSphere
	// StageRawNormals estimates one face normal per sample.
	StageRawNormals
	// StageNormals smooths raw normals over angular neighbors.
	StageNormals
)

// String returns the stage name used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case StagePositions:
		return "positions"
	case StageBoundingSphere:
		return "bounding_sphere"
	case StageRawNormals:
		return "raw_normals"
	case StageNormals:
		return "normals"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var (
	allStages      = []Stage{StagePositions, StageBoundingSphere, StageRawNormals, StageNormals}
	geometryStages = []Stage{StagePositions, StageBoundingSphere}
)

// Stages returns the stages of a run, with or without the normal passes.
func Stages(withNormals bool) []Stage {
	if withNormals {
		return allStages
	}
	return geometryStages
}

func passName(withNormals bool) string {
	if withNormals {
		return "full"
	}
	return "geometry"
}

var (
	// ErrNotAllocated is returned when a run or upload happens before Allocate.
	ErrNotAllocated = errors.New("compute: buffers not allocated")

	// ErrShapeMismatch is returned when an uploaded buffer does not match
	// the allocated shape.
	ErrShapeMismatch = errors.New("compute: buffer shape mismatch")

	// ErrInvalidStep is returned for angular steps that are not positive
	// or produce more columns than a uint16 index can address.
	ErrInvalidStep = errors.New("compute: invalid angular step")
)

// StageError reports the stage a backend failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("compute: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Backend executes stages over host buffers.
//
// Dispatch runs stages in the given order and writes their outputs into b.
// On failure it returns a *StageError; the contents of b are then undefined.
type Backend interface {
	Name() string
	Dispatch(stages []Stage, u Uniforms, b *Buffers) error
	Close()
}
