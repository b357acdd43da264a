package shaders

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed common.wgsl
var commonWGSL string

//go:embed light_cull.wgsl
var lightCullWGSL string

//go:embed grade.wgsl
var gradeWGSL string

//go:embed present.wgsl
var presentWGSL string

var ErrCompile = errors.New("shader compilation failed")

// Stage names one GPU program.
type Stage string

const (
	LightCull Stage = "light_cull"
	Grade     Stage = "grade"
	Present   Stage = "present"
)

// Stages lists every program in dispatch order.
func Stages() []Stage {
	return []Stage{LightCull, Grade, Present}
}

// Source returns the WGSL of a stage with the shared declarations prepended.
func Source(stage Stage) (string, error) {
	var body string
	switch stage {
	case LightCull:
		body = lightCullWGSL
	case Grade:
		body = gradeWGSL
	case Present:
		body = presentWGSL
	default:
		return "", fmt.Errorf("%w: unknown stage %q", ErrCompile, stage)
	}
	return commonWGSL + "\n" + body, nil
}

// Compile translates a stage to SPIR-V. Device setup calls it before
// creating modules so malformed WGSL fails with naga's diagnostics.
func Compile(stage Stage) ([]byte, error) {
	src, err := Source(stage)
	if err != nil {
		return nil, err
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, stage, err)
	}
	return spirv, nil
}

// ValidateAll compiles every stage and joins the failures.
func ValidateAll() error {
	var errs []error
	for _, s := range Stages() {
		if _, err := Compile(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
