package syncrpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// SchemaPath is the import path of api/ganhos/v1/record_sync.proto.
const SchemaPath = "ganhos/v1/record_sync.proto"

const protoPackage = "ganhos.v1"

// Schema is the file descriptor of record_sync.proto. It is built from the same
// declarations as the checked-in file and validated by protodesc on package init.
var Schema = mustFile(&descriptorpb.FileDescriptorProto{
	Name:    proto.String(SchemaPath),
	Package: proto.String(protoPackage),
	Syntax:  proto.String("proto3"),
	Options: &descriptorpb.FileOptions{
		GoPackage: proto.String("github.com/and161185/ganhos-keeper/internal/syncrpc"),
	},
	MessageType: []*descriptorpb.DescriptorProto{
		message("Record",
			scalar("id", 1),
			scalar("date", 2),
			scalar("total_earnings", 3),
			scalar("km_driven", 4),
			scalar("hours_worked", 5),
			scalar("additional_costs", 6),
		),
		message("UpsertRecordRequest", scalar("operation_id", 1), nested("record", 2, "Record")),
		message("UpsertRecordResponse"),
		message("DeleteRecordRequest", scalar("operation_id", 1), scalar("id", 2)),
		message("DeleteRecordResponse"),
		message("ListRecordsRequest"),
		message("ListRecordsResponse", repeated(nested("records", 1, "Record"))),
	},
	Service: []*descriptorpb.ServiceDescriptorProto{{
		Name: proto.String("RecordSync"),
		Method: []*descriptorpb.MethodDescriptorProto{
			rpc("UpsertRecord"),
			rpc("DeleteRecord"),
			rpc("ListRecords"),
		},
	}},
})

func mustFile(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("syncrpc: invalid schema: %v", err))
	}
	return fd
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func scalar(name string, num int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
	}
}

func nested(name string, num int32, msg string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String("." + protoPackage + "." + msg),
	}
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func rpc(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + name + "Request"),
		OutputType: proto.String("." + protoPackage + "." + name + "Response"),
	}
}

func messageDesc(name protoreflect.Name) protoreflect.MessageDescriptor {
	return Schema.Messages().ByName(name)
}
