package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/roman-kulish/uxv-edge/internal/stream"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
)

// TelemetryIngestServer is the server API of the uxv.v1.TelemetryIngest service
type TelemetryIngestServer interface {
	StreamTelemetry(*ServerStream[telemetry.Telemetry]) error
}

// DetectionIngestServer is the server API of the uxv.v1.DetectionIngest service
type DetectionIngestServer interface {
	StreamDetections(*ServerStream[telemetry.Detection]) error
}

// RegisterTelemetryIngestServer registers srv on the gRPC server
func RegisterTelemetryIngestServer(s grpc.ServiceRegistrar, srv TelemetryIngestServer) {
	s.RegisterService(&telemetryServiceDesc, srv)
}

// RegisterDetectionIngestServer registers srv on the gRPC server
func RegisterDetectionIngestServer(s grpc.ServiceRegistrar, srv DetectionIngestServer) {
	s.RegisterService(&detectionServiceDesc, srv)
}

// ServerStream is the server side of one client-streaming ingest call
type ServerStream[T any] struct {
	ss      grpc.ServerStream
	in      protoreflect.MessageDescriptor
	ackDesc protoreflect.MessageDescriptor
	decode  func(protoreflect.Message) T
}

func (s *ServerStream[T]) Context() context.Context {
	return s.ss.Context()
}

// Recv returns the next sample together with its wire message.
// It returns io.EOF once the client has closed the stream.
func (s *ServerStream[T]) Recv() (T, proto.Message, error) {
	m := dynamicpb.NewMessage(s.in)
	if err := s.ss.RecvMsg(m); err != nil {
		var zero T
		return zero, nil, err
	}
	return s.decode(m), m, nil
}

// SendAndClose sends the acknowledgement that completes the call
func (s *ServerStream[T]) SendAndClose(ack stream.Ack) error {
	return s.ss.SendMsg(AckMessage(s.ackDesc, ack))
}

var telemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: TelemetryService,
	HandlerType: (*TelemetryIngestServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTelemetry",
			Handler:       streamTelemetryHandler,
			ClientStreams: true,
		},
	},
	Metadata: telemetryFileName,
}

var detectionServiceDesc = grpc.ServiceDesc{
	ServiceName: DetectionService,
	HandlerType: (*DetectionIngestServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamDetections",
			Handler:       streamDetectionsHandler,
			ClientStreams: true,
		},
	},
	Metadata: detectionFileName,
}

func streamTelemetryHandler(srv any, ss grpc.ServerStream) error {
	return srv.(TelemetryIngestServer).StreamTelemetry(&ServerStream[telemetry.Telemetry]{
		ss:      ss,
		in:      telemetryDesc,
		ackDesc: telemetryAckDesc,
		decode:  TelemetryFromMessage,
	})
}

func streamDetectionsHandler(srv any, ss grpc.ServerStream) error {
	return srv.(DetectionIngestServer).StreamDetections(&ServerStream[telemetry.Detection]{
		ss:      ss,
		in:      detectionDesc,
		ackDesc: detectionAckDesc,
		decode:  DetectionFromMessage,
	})
}
