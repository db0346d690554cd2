package facedetector

import (
	"context"
	"fmt"
	"image"
)

// PerformanceMode trades detection latency against accuracy.
type PerformanceMode string

// Mode toggles an optional detector output (landmarks, contours, classification).
type Mode string

const (
	PerformanceFast     PerformanceMode = "fast"
	PerformanceAccurate PerformanceMode = "accurate"

	ModeNone Mode = "none"
	ModeAll  Mode = "all"
)

// Options configures a detector instance.
type Options struct {
	PerformanceMode    PerformanceMode
	ClassificationMode Mode
	LandmarkMode       Mode
	ContourMode        Mode
	// MinFaceSize is the smallest face to report, relative to image width.
	MinFaceSize    float32
	EnableTracking bool
}

// DefaultOptions favours latency and enables eye-open classification.
func DefaultOptions() Options {
	return Options{
		PerformanceMode:    PerformanceFast,
		ClassificationMode: ModeAll,
		LandmarkMode:       ModeNone,
		ContourMode:        ModeNone,
		MinFaceSize:        0.1,
	}
}

// Validate reports the first unsupported option.
func (o Options) Validate() error {
	switch o.PerformanceMode {
	case PerformanceFast, PerformanceAccurate:
	default:
		return fmt.Errorf("unsupported performance mode %q", o.PerformanceMode)
	}
	for name, mode := range map[string]Mode{
		"classification": o.ClassificationMode,
		"landmark":       o.LandmarkMode,
		"contour":        o.ContourMode,
	} {
		if mode != ModeNone && mode != ModeAll {
			return fmt.Errorf("unsupported %s mode %q", name, mode)
		}
	}
	if o.MinFaceSize < 0 || o.MinFaceSize > 1 {
		return fmt.Errorf("min face size %v outside [0,1]", o.MinFaceSize)
	}
	return nil
}

// Frame is a decoded bitmap submitted for detection.
type Frame struct {
	Image           image.Image
	RotationDegrees int
}

// Bounds is the face rectangle in frame pixels.
type Bounds struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// EulerAngles describes head pose in degrees.
type EulerAngles struct {
	X float64
	Y float64
	Z float64
}

// Face is a single detection as reported by the external service.
type Face struct {
	Bounds                  Bounds
	LeftEyeOpenProbability  Probability
	RightEyeOpenProbability Probability
	SmilingProbability      Probability
	HeadEulerAngle          EulerAngles
	TrackingID              *int
}

// Detector exposes the subset of the external face-detection service used by the bridge.
type Detector interface {
	Process(ctx context.Context, frame Frame) ([]Face, error)
}

// Factory constructs a detector configured with opts.
type Factory interface {
	NewDetector(opts Options) (Detector, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(opts Options) (Detector, error)

// NewDetector calls f(opts).
func (f FactoryFunc) NewDetector(opts Options) (Detector, error) {
	return f(opts)
}
