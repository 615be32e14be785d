//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/positions.wgsl
var shaderPositions string

//go:embed shaders/bounding_sphere.wgsl
var shaderBoundingSphere string

//go:embed shaders/raw_normals.wgsl
var shaderRawNormals string

//go:embed shaders/normals.wgsl
var shaderNormals string

// workgroupSize matches @workgroup_size in every kernel.
const workgroupSize = 64

const stageCount = 4

// stageShaders maps each stage to its WGSL source.
var stageShaders = [stageCount]string{
	compute.StagePositions:      shaderPositions,
	compute.StageBoundingSphere: shaderBoundingSphere,
	compute.StageRawNormals:     shaderRawNormals,
	compute.StageNormals:        shaderNormals,
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	b, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// shaderSource returns the module source for a stage. Kernels are handed to
// the device as SPIR-V when naga can lower them, and as WGSL otherwise.
func shaderSource(stage compute.Stage) hal.ShaderSource {
	src := stageShaders[stage]
	words, err := compileSPIRV(src)
	if err != nil {
		slogger().Warn("cones gpu: naga compile failed, passing WGSL", "stage", stage.String(), "err", err)
		return hal.ShaderSource{WGSL: src}
	}
	slogger().Debug("cones gpu: compiled kernel", "stage", stage.String(), "spirv_words", len(words))
	return hal.ShaderSource{SPIRV: words}
}

// workgroups returns the 1D workgroup count covering a stage's elements.
func workgroups(stage compute.Stage, columns, rows int) uint32 {
	var n int
	switch stage {
	case compute.StagePositions:
		n = columns * rows
	case compute.StageBoundingSphere:
		n = rows
	default:
		n = (columns + 1) * rows
	}
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // bounded by buffer sizes
}
