// Package mlkit exposes the face detector to the host as the MLKitFaceDetection native module.
package mlkit

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/example/face-bridge/internal/bitmap"
	"github.com/example/face-bridge/internal/bridge"
	"github.com/example/face-bridge/internal/facedetector"
	"github.com/example/face-bridge/internal/logging"
)

const (
	// ModuleName is the identifier the host uses to look the module up.
	ModuleName = "MLKitFaceDetection"
	// ErrorCode is the only rejection code the module emits.
	ErrorCode = "ERROR"

	// KeyFaceDetected is the result key set when at least one face was found.
	KeyFaceDetected = "faceDetected"
	// KeyEyesOpen is the result key set when both eyes of the first face are open.
	KeyEyesOpen = "eyesOpen"

	eyeOpenThreshold = 0.5
)

// Decoder loads the bitmap referenced by an image locator.
type Decoder func(uri string) (image.Image, error)

// FaceDetector is the host-facing contract of the module.
type FaceDetector interface {
	bridge.NativeModule
	DetectFace(ctx context.Context, imagePath string, promise *bridge.Promise)
}

// FaceDetectionModule adapts an external face detector to the bridge.
type FaceDetectionModule struct {
	detectors facedetector.Factory
	decode    Decoder
	options   facedetector.Options
	logger    *zap.Logger
}

// Option customises a FaceDetectionModule.
type Option func(*FaceDetectionModule)

// WithDecoder replaces the bitmap decoder.
func WithDecoder(decode Decoder) Option {
	return func(m *FaceDetectionModule) { m.decode = decode }
}

// WithDetectorOptions replaces the detector configuration. Performance and
// classification modes are always fast and all regardless of opts.
func WithDetectorOptions(opts facedetector.Options) Option {
	return func(m *FaceDetectionModule) { m.options = opts }
}

// NewFaceDetectionModule builds the module around a detector factory.
func NewFaceDetectionModule(detectors facedetector.Factory, logger *zap.Logger, opts ...Option) *FaceDetectionModule {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &FaceDetectionModule{
		detectors: detectors,
		decode:    bitmap.DecodeFile,
		options:   facedetector.DefaultOptions(),
		logger:    logging.WithModule(logger, ModuleName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements bridge.NativeModule.
func (m *FaceDetectionModule) Name() string {
	return ModuleName
}

// DetectFace decodes imagePath, runs detection and settles promise with
// {faceDetected, eyesOpen} or an ERROR rejection. Decoding and detector
// construction happen before DetectFace returns; detection completes in the
// background and is not cancelled when ctx is.
func (m *FaceDetectionModule) DetectFace(ctx context.Context, imagePath string, promise *bridge.Promise) {
	frame, detector, err := m.prepare(imagePath)
	if err != nil {
		m.logger.Warn("face detection rejected before submission", zap.String("image_path", imagePath), zap.Error(err))
		promise.Reject(ErrorCode, err.Error())
		return
	}

	detectCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("face detector panicked", zap.Any("panic", r))
				promise.Reject(ErrorCode, fmt.Sprint(r))
			}
		}()

		faces, err := detector.Process(detectCtx, frame)
		if err != nil {
			m.logger.Warn("face detector failed", zap.String("image_path", imagePath), zap.Error(err))
			promise.Reject(ErrorCode, err.Error())
			return
		}
		result := Evaluate(faces)
		m.logger.Debug("face detection completed",
			zap.Int("faces", len(faces)),
			zap.Bool(KeyFaceDetected, result.FaceDetected),
			zap.Bool(KeyEyesOpen, result.EyesOpen),
		)
		promise.Resolve(result.Map())
	}()
}

func (m *FaceDetectionModule) prepare(imagePath string) (frame facedetector.Frame, detector facedetector.Detector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	img, err := m.decode(imagePath)
	if err != nil {
		return frame, nil, err
	}
	frame = facedetector.Frame{Image: img, RotationDegrees: 0}

	if m.detectors == nil {
		return frame, nil, fmt.Errorf("face detector factory not configured")
	}
	detector, err = m.detectors.NewDetector(m.detectorOptions())
	if err != nil {
		return frame, nil, err
	}
	return frame, detector, nil
}

// detectorOptions returns the configured options with the modes eye-open
// classification depends on pinned.
func (m *FaceDetectionModule) detectorOptions() facedetector.Options {
	opts := m.options
	opts.PerformanceMode = facedetector.PerformanceFast
	opts.ClassificationMode = facedetector.ModeAll
	return opts
}
