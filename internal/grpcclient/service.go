package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The face detection service speaks google.protobuf.Struct in both directions.
//
// Request fields: image (base64 PNG), rotation_degrees, performance_mode,
// classification_mode, landmark_mode, contour_mode, min_face_size,
// enable_tracking.
//
// Response fields: faces, a list of objects with optional bounds{x,y,width,height},
// left_eye_open_probability, right_eye_open_probability, smiling_probability,
// head_euler_angle_x/y/z and tracking_id. A null or absent probability means
// the model did not estimate it.
const (
	serviceName   = "facedetection.v1.FaceDetector"
	processMethod = "/" + serviceName + "/Process"
)

// FaceDetectorServer is implemented by face detection backends.
type FaceDetectorServer interface {
	Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterFaceDetectorServer attaches srv to a gRPC server.
func RegisterFaceDetectorServer(s grpc.ServiceRegistrar, srv FaceDetectorServer) {
	s.RegisterService(&faceDetectorServiceDesc, srv)
}

func processHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceDetectorServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceDetectorServer).Process(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var faceDetectorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FaceDetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "facedetection/v1/face_detector.proto",
}
