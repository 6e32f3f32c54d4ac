package wire

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/roman-kulish/uxv-edge/internal/stream"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
)

// Dial creates a plaintext client connection to the ingest endpoint (eg "localhost:50051").
// The connection is established lazily, on the first stream.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

// TelemetryClient is the client of the uxv.v1.TelemetryIngest service
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

// StreamTelemetry opens a StreamTelemetry call
func (c *TelemetryClient) StreamTelemetry(ctx context.Context, opts ...grpc.CallOption) (stream.Stream[telemetry.Telemetry], error) {
	cs, err := c.cc.NewStream(ctx, &telemetryServiceDesc.Streams[0], StreamTelemetryMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream[telemetry.Telemetry]{cs: cs, encode: TelemetryMessage, ackDesc: telemetryAckDesc}, nil
}

// DetectionClient is the client of the uxv.v1.DetectionIngest service
type DetectionClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectionClient(cc grpc.ClientConnInterface) *DetectionClient {
	return &DetectionClient{cc: cc}
}

// StreamDetections opens a StreamDetections call
func (c *DetectionClient) StreamDetections(ctx context.Context, opts ...grpc.CallOption) (stream.Stream[telemetry.Detection], error) {
	cs, err := c.cc.NewStream(ctx, &detectionServiceDesc.Streams[0], StreamDetectionsMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream[telemetry.Detection]{cs: cs, encode: DetectionMessage, ackDesc: detectionAckDesc}, nil
}

// clientStream adapts a client-streaming gRPC call to stream.Stream
type clientStream[T any] struct {
	cs      grpc.ClientStream
	encode  func(T) *dynamicpb.Message
	ackDesc protoreflect.MessageDescriptor
	bytes   atomic.Int64
}

func (s *clientStream[T]) Send(sample T) error {
	m := s.encode(sample)
	if err := s.cs.SendMsg(m); err != nil {
		return err
	}
	s.bytes.Add(int64(proto.Size(m)))
	return nil
}

func (s *clientStream[T]) CloseAndRecv() (stream.Ack, error) {
	if err := s.cs.CloseSend(); err != nil {
		return stream.Ack{}, err
	}

	m := dynamicpb.NewMessage(s.ackDesc)
	if err := s.cs.RecvMsg(m); err != nil {
		return stream.Ack{}, err
	}
	return AckFromMessage(m), nil
}

// BytesSent returns the encoded size of all accepted samples
func (s *clientStream[T]) BytesSent() int64 {
	return s.bytes.Load()
}
