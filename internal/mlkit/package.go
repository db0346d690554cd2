package mlkit

import (
	"go.uber.org/zap"

	"github.com/example/face-bridge/internal/bridge"
	"github.com/example/face-bridge/internal/facedetector"
)

// Package registers the face detection module with the host.
type Package struct {
	detectors facedetector.Factory
	opts      []Option
}

// NewPackage returns a package whose module uses detectors.
func NewPackage(detectors facedetector.Factory, opts ...Option) *Package {
	return &Package{detectors: detectors, opts: opts}
}

// CreateNativeModules returns the face detection module as the only module.
func (p *Package) CreateNativeModules(ctx *bridge.AppContext) []bridge.NativeModule {
	var logger *zap.Logger
	if ctx != nil {
		logger = ctx.Logger
	}
	return []bridge.NativeModule{NewFaceDetectionModule(p.detectors, logger, p.opts...)}
}

// CreateViewManagers returns an empty list; the package has no visual components.
func (p *Package) CreateViewManagers(*bridge.AppContext) []bridge.ViewManager {
	return []bridge.ViewManager{}
}
