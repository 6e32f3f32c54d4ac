package wire

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/roman-kulish/uxv-edge/internal/stream"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
)

// jsonOptions keeps the schema field names and renders 64-bit integers, such
// as ts_ns, as decimal strings
var jsonOptions = protojson.MarshalOptions{
	UseProtoNames:   true,
	EmitUnpopulated: true,
}

// TelemetryMessage encodes a telemetry sample as a uxv.v1.Telemetry message
func TelemetryMessage(t telemetry.Telemetry) *dynamicpb.Message {
	m := dynamicpb.NewMessage(telemetryDesc)
	set(m, "ts_ns", protoreflect.ValueOfUint64(t.TimestampNs))
	set(m, "lat", protoreflect.ValueOfFloat64(t.Latitude))
	set(m, "lon", protoreflect.ValueOfFloat64(t.Longitude))
	set(m, "alt_m", protoreflect.ValueOfFloat64(t.AltitudeM))
	set(m, "yaw_deg", protoreflect.ValueOfFloat64(t.YawDeg))
	set(m, "pitch_deg", protoreflect.ValueOfFloat64(t.PitchDeg))
	set(m, "roll_deg", protoreflect.ValueOfFloat64(t.RollDeg))
	set(m, "vn", protoreflect.ValueOfFloat64(t.VelocityNorth))
	set(m, "ve", protoreflect.ValueOfFloat64(t.VelocityEast))
	set(m, "vd", protoreflect.ValueOfFloat64(t.VelocityDown))
	return m
}

// TelemetryFromMessage decodes a uxv.v1.Telemetry message
func TelemetryFromMessage(m protoreflect.Message) telemetry.Telemetry {
	return telemetry.Telemetry{
		TimestampNs:   get(m, "ts_ns").Uint(),
		Latitude:      get(m, "lat").Float(),
		Longitude:     get(m, "lon").Float(),
		AltitudeM:     get(m, "alt_m").Float(),
		YawDeg:        get(m, "yaw_deg").Float(),
		PitchDeg:      get(m, "pitch_deg").Float(),
		RollDeg:       get(m, "roll_deg").Float(),
		VelocityNorth: get(m, "vn").Float(),
		VelocityEast:  get(m, "ve").Float(),
		VelocityDown:  get(m, "vd").Float(),
	}
}

// DetectionMessage encodes a detection as a uxv.v1.Detection message.
// Bounding box coordinates are narrowed to the schema's 32-bit floats.
func DetectionMessage(d telemetry.Detection) *dynamicpb.Message {
	bbox := dynamicpb.NewMessage(bboxDesc)
	set(bbox, "x", protoreflect.ValueOfFloat32(float32(d.BBox.X)))
	set(bbox, "y", protoreflect.ValueOfFloat32(float32(d.BBox.Y)))
	set(bbox, "w", protoreflect.ValueOfFloat32(float32(d.BBox.Width)))
	set(bbox, "h", protoreflect.ValueOfFloat32(float32(d.BBox.Height)))

	m := dynamicpb.NewMessage(detectionDesc)
	set(m, "ts_ns", protoreflect.ValueOfUint64(d.TimestampNs))
	set(m, "cls", protoreflect.ValueOfString(d.Class))
	set(m, "confidence", protoreflect.ValueOfFloat64(d.Confidence))
	set(m, "bbox", protoreflect.ValueOfMessage(bbox))
	set(m, "lat", protoreflect.ValueOfFloat64(d.Latitude))
	set(m, "lon", protoreflect.ValueOfFloat64(d.Longitude))
	return m
}

// DetectionFromMessage decodes a uxv.v1.Detection message
func DetectionFromMessage(m protoreflect.Message) telemetry.Detection {
	bbox := get(m, "bbox").Message()

	return telemetry.Detection{
		TimestampNs: get(m, "ts_ns").Uint(),
		Class:       get(m, "cls").String(),
		Confidence:  get(m, "confidence").Float(),
		BBox: telemetry.BoundingBox{
			X:      get(bbox, "x").Float(),
			Y:      get(bbox, "y").Float(),
			Width:  get(bbox, "w").Float(),
			Height: get(bbox, "h").Float(),
		},
		Latitude:  get(m, "lat").Float(),
		Longitude: get(m, "lon").Float(),
	}
}

// AckMessage encodes an acknowledgement using the given ack descriptor
func AckMessage(desc protoreflect.MessageDescriptor, ack stream.Ack) *dynamicpb.Message {
	m := dynamicpb.NewMessage(desc)
	set(m, "ok", protoreflect.ValueOfBool(ack.OK))
	return m
}

// AckFromMessage decodes a TelemetryAck or DetectionAck message
func AckFromMessage(m protoreflect.Message) stream.Ack {
	return stream.Ack{OK: get(m, "ok").Bool()}
}

// MarshalJSON renders a message as JSON with schema field names
func MarshalJSON(m proto.Message) ([]byte, error) {
	return jsonOptions.Marshal(m)
}

func set(m *dynamicpb.Message, name string, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), v)
}

func get(m protoreflect.Message, name string) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name)))
}
