package mlkit

import (
	"github.com/example/face-bridge/internal/bridge"
	"github.com/example/face-bridge/internal/facedetector"
)

// DetectionResult is the simplified outcome returned to the host.
type DetectionResult struct {
	FaceDetected bool `json:"faceDetected"`
	EyesOpen     bool `json:"eyesOpen"`
}

// Evaluate reduces the detector output to a DetectionResult. Only the first
// face, in detector order, is considered.
func Evaluate(faces []facedetector.Face) DetectionResult {
	if len(faces) == 0 {
		return DetectionResult{}
	}
	face := faces[0]
	left := face.LeftEyeOpenProbability.OrZero()
	right := face.RightEyeOpenProbability.OrZero()
	return DetectionResult{
		FaceDetected: true,
		EyesOpen:     left > eyeOpenThreshold && right > eyeOpenThreshold,
	}
}

// Map renders the result as the bridge response record.
func (r DetectionResult) Map() bridge.Map {
	return bridge.Map{
		KeyFaceDetected: r.FaceDetected,
		KeyEyesOpen:     r.EyesOpen,
	}
}

// ResultFromMap reads a response record produced by Map.
func ResultFromMap(m bridge.Map) DetectionResult {
	return DetectionResult{
		FaceDetected: m.Bool(KeyFaceDetected),
		EyesOpen:     m.Bool(KeyEyesOpen),
	}
}
