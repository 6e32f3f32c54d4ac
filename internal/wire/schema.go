// Package wire holds the uxv.v1 ingest schema and its gRPC bindings.
//
// The schema mirrors proto/uxv/v1/telemetry.proto and proto/uxv/v1/detections.proto.
// Descriptors are built at init and messages are handled as dynamic protobuf
// messages, so the wire format is identical to generated stubs without a
// code generation step.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	Package = "uxv.v1"

	TelemetryService = Package + ".TelemetryIngest"
	DetectionService = Package + ".DetectionIngest"

	StreamTelemetryMethod  = "/" + TelemetryService + "/StreamTelemetry"
	StreamDetectionsMethod = "/" + DetectionService + "/StreamDetections"

	telemetryFileName = "uxv/v1/telemetry.proto"
	detectionFileName = "uxv/v1/detections.proto"
)

var (
	TelemetryFile protoreflect.FileDescriptor
	DetectionFile protoreflect.FileDescriptor

	telemetryDesc    protoreflect.MessageDescriptor
	telemetryAckDesc protoreflect.MessageDescriptor
	detectionDesc    protoreflect.MessageDescriptor
	detectionAckDesc protoreflect.MessageDescriptor
	bboxDesc         protoreflect.MessageDescriptor
)

func init() {
	var err error
	if TelemetryFile, err = protodesc.NewFile(telemetryFileProto(), new(protoregistry.Files)); err != nil {
		panic(fmt.Errorf("building %s: %w", telemetryFileName, err))
	}
	if DetectionFile, err = protodesc.NewFile(detectionFileProto(), new(protoregistry.Files)); err != nil {
		panic(fmt.Errorf("building %s: %w", detectionFileName, err))
	}

	telemetryDesc = TelemetryFile.Messages().ByName("Telemetry")
	telemetryAckDesc = TelemetryFile.Messages().ByName("TelemetryAck")
	detectionDesc = DetectionFile.Messages().ByName("Detection")
	detectionAckDesc = DetectionFile.Messages().ByName("DetectionAck")
	bboxDesc = DetectionFile.Messages().ByName("BBox")
}

// TelemetryDescriptor returns the descriptor of uxv.v1.Telemetry
func TelemetryDescriptor() protoreflect.MessageDescriptor {
	return telemetryDesc
}

// DetectionDescriptor returns the descriptor of uxv.v1.Detection
func DetectionDescriptor() protoreflect.MessageDescriptor {
	return detectionDesc
}

func telemetryFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(telemetryFileName),
		Package: proto.String(Package),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Telemetry"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("ts_ns", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("lat", 2, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("lon", 3, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("alt_m", 4, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("yaw_deg", 5, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("pitch_deg", 6, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("roll_deg", 7, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("vn", 8, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("ve", 9, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("vd", 10, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
				},
			},
			ackProto("TelemetryAck"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			serviceProto("TelemetryIngest", "StreamTelemetry", "Telemetry", "TelemetryAck"),
		},
	}
}

func detectionFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(detectionFileName),
		Package: proto.String(Package),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("BBox"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("x", 1, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("y", 2, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("w", 3, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("h", 4, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
				},
			},
			{
				Name: proto.String("Detection"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("ts_ns", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("cls", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("confidence", 3, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					message("bbox", 4, "BBox"),
					scalar("lat", 5, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("lon", 6, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
				},
			},
			ackProto("DetectionAck"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			serviceProto("DetectionIngest", "StreamDetections", "Detection", "DetectionAck"),
		},
	}
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func message(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(fullName(typeName))
	return f
}

func ackProto(name string) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String(name),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalar("ok", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
		},
	}
}

func serviceProto(name, method, input, output string) *descriptorpb.ServiceDescriptorProto {
	return &descriptorpb.ServiceDescriptorProto{
		Name: proto.String(name),
		Method: []*descriptorpb.MethodDescriptorProto{
			{
				Name:            proto.String(method),
				InputType:       proto.String(fullName(input)),
				OutputType:      proto.String(fullName(output)),
				ClientStreaming: proto.Bool(true),
			},
		},
	}
}

func fullName(name string) string {
	return "." + Package + "." + name
}
