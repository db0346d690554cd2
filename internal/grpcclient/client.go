package grpcclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-bridge/internal/facedetector"
	"github.com/example/face-bridge/internal/logging"
)

// DialFaceDetector connects to the face detection service and returns a
// detector factory sharing that connection.
func DialFaceDetector(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, extra ...grpc.DialOption) (*FaceDetectorFactory, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, extra...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_detector", "", err)
		logger.Error("failed to dial face detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewFaceDetectorFactory(conn, logger), conn, nil
}

// FaceDetectorFactory builds per-call detectors over a shared connection.
type FaceDetectorFactory struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewFaceDetectorFactory wraps an established connection.
func NewFaceDetectorFactory(conn grpc.ClientConnInterface, logger *zap.Logger) *FaceDetectorFactory {
	return &FaceDetectorFactory{conn: conn, logger: logger.Named("face_detector")}
}

// NewDetector implements facedetector.Factory.
func (f *FaceDetectorFactory) NewDetector(opts facedetector.Options) (facedetector.Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, logging.NewOperationError("grpcclient.new_detector", "", err)
	}
	return &grpcFaceDetector{conn: f.conn, opts: opts, logger: f.logger}, nil
}

type grpcFaceDetector struct {
	conn   grpc.ClientConnInterface
	opts   facedetector.Options
	logger *zap.Logger
}

func (g *grpcFaceDetector) Process(ctx context.Context, frame facedetector.Frame) ([]facedetector.Face, error) {
	req, err := g.buildRequest(frame)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_frame", "", err)
	}

	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, processMethod, req, resp); err != nil {
		// Surface the detector's own message rather than the transport envelope.
		wrapped := logging.NewOperationError("grpcclient.process_frame", "", errors.New(status.Convert(err).Message()))
		g.logger.Error("face detector call failed", zap.Error(wrapped), zap.String("code", status.Code(err).String()))
		return nil, wrapped
	}
	return decodeFaces(resp)
}

func (g *grpcFaceDetector) buildRequest(frame facedetector.Frame) (*structpb.Struct, error) {
	if frame.Image == nil {
		return nil, errors.New("frame has no image")
	}
	payload, err := encodePNG(frame.Image)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]interface{}{
		"image":               payload,
		"rotation_degrees":    frame.RotationDegrees,
		"performance_mode":    string(g.opts.PerformanceMode),
		"classification_mode": string(g.opts.ClassificationMode),
		"landmark_mode":       string(g.opts.LandmarkMode),
		"contour_mode":        string(g.opts.ContourMode),
		"min_face_size":       float64(g.opts.MinFaceSize),
		"enable_tracking":     g.opts.EnableTracking,
	})
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFaces(resp *structpb.Struct) ([]facedetector.Face, error) {
	raw, ok := resp.GetFields()["faces"]
	if !ok {
		return nil, nil
	}
	if _, isNull := raw.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	list := raw.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("faces field is %T, want list", raw.GetKind())
	}

	faces := make([]facedetector.Face, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("face %d is not an object", i)
		}
		fields := obj.GetFields()
		face := facedetector.Face{
			LeftEyeOpenProbability:  probability(fields["left_eye_open_probability"]),
			RightEyeOpenProbability: probability(fields["right_eye_open_probability"]),
			SmilingProbability:      probability(fields["smiling_probability"]),
			HeadEulerAngle: facedetector.EulerAngles{
				X: number(fields["head_euler_angle_x"]),
				Y: number(fields["head_euler_angle_y"]),
				Z: number(fields["head_euler_angle_z"]),
			},
		}
		if bounds := fields["bounds"].GetStructValue().GetFields(); bounds != nil {
			face.Bounds = facedetector.Bounds{
				X:      number(bounds["x"]),
				Y:      number(bounds["y"]),
				Width:  number(bounds["width"]),
				Height: number(bounds["height"]),
			}
		}
		if id, ok := fields["tracking_id"].GetKind().(*structpb.Value_NumberValue); ok {
			tracking := int(id.NumberValue)
			face.TrackingID = &tracking
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func probability(v *structpb.Value) facedetector.Probability {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return facedetector.Unknown()
	}
	return facedetector.Known(float32(n.NumberValue))
}

func number(v *structpb.Value) float64 {
	return v.GetNumberValue()
}
