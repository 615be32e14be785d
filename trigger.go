package cones

import "fmt"

// Trigger names a change that may require the pipeline to be re-run.
type Trigger uint8

const (
	// TriggerConeStep: the angular step changed. Boundary functions and
	// buffers are rebuilt and every stage runs.
	TriggerConeStep Trigger = iota

	// TriggerYear: the active year changed. Elevations are re-uploaded and
	// every stage runs.
	TriggerYear

	// TriggerLimits: a cone's limit switch changed. Nothing runs until
	// enough ticks have passed.
	TriggerLimits

	// TriggerTick: periodic signal flushing pending limit changes.
	TriggerTick

	// TriggerProjection: a display parameter changed. Positions and
	// bounding spheres are recomputed, normals are kept.
	TriggerProjection

	// TriggerProjectionBegin: a projection endpoint changed. Every stage runs.
	TriggerProjectionBegin

	// TriggerConeSetReplaced: new source data. Full rebuild.
	TriggerConeSetReplaced

	// TriggerRebuild: the Earth radius changed. Full rebuild from the
	// current source data.
	TriggerRebuild

	triggerCount
)

var triggerNames = [triggerCount]string{
	TriggerConeStep:        "cone_step",
	TriggerYear:            "year",
	TriggerLimits:          "limits",
	TriggerTick:            "tick",
	TriggerProjection:      "projection",
	TriggerProjectionBegin: "projection_begin",
	TriggerConeSetReplaced: "cone_set_replaced",
	TriggerRebuild:         "rebuild",
}

func (t Trigger) String() string {
	if t < triggerCount {
		return triggerNames[t]
	}
	return fmt.Sprintf("Trigger(%d)", uint8(t))
}
