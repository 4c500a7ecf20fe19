package syncrpc

import (
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/and161185/ganhos-keeper/internal/model"
)

// UpsertRecordRequest inserts or fully replaces a record.
// OperationID identifies the queued mutation being replayed; it is informational.
type UpsertRecordRequest struct {
	OperationID string
	Record      model.Record
}

type UpsertRecordResponse struct{}

// DeleteRecordRequest removes a record. Deleting an unknown id succeeds.
type DeleteRecordRequest struct {
	OperationID string
	ID          string
}

type DeleteRecordResponse struct{}

type ListRecordsRequest struct{}

type ListRecordsResponse struct {
	Records []model.Record
}

func (r *UpsertRecordRequest) GetOperationID() string {
	if r == nil {
		return ""
	}
	return r.OperationID
}

func (r *DeleteRecordRequest) GetOperationID() string {
	if r == nil {
		return ""
	}
	return r.OperationID
}

// wireMessage is implemented by every request and response; it maps the Go value to
// and from its record_sync.proto message. toWire must accept a nil receiver.
type wireMessage interface {
	descriptor() protoreflect.MessageDescriptor
	toWire(m protoreflect.Message)
	fromWire(m protoreflect.Message) error
}

var (
	upsertRecordRequestDesc  = messageDesc("UpsertRecordRequest")
	upsertRecordResponseDesc = messageDesc("UpsertRecordResponse")
	deleteRecordRequestDesc  = messageDesc("DeleteRecordRequest")
	deleteRecordResponseDesc = messageDesc("DeleteRecordResponse")
	listRecordsRequestDesc   = messageDesc("ListRecordsRequest")
	listRecordsResponseDesc  = messageDesc("ListRecordsResponse")
)

// marshal returns the protobuf form of a request or response.
func marshal(v wireMessage) *dynamicpb.Message {
	m := dynamicpb.NewMessage(v.descriptor())
	v.toWire(m)
	return m
}

// unmarshal fills v from its protobuf form.
func unmarshal(m protoreflect.Message, v wireMessage) error {
	if got, want := m.Descriptor().FullName(), v.descriptor().FullName(); got != want {
		return fmt.Errorf("syncrpc: got %s, want %s", got, want)
	}
	return v.fromWire(m)
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(m.Descriptor().Fields().ByName(name)).String()
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	if v == "" {
		return
	}
	m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfString(v))
}

func recordToWire(r model.Record, m protoreflect.Message) {
	setString(m, "id", r.ID)
	setString(m, "date", r.Date)
	setString(m, "total_earnings", r.TotalEarnings.String())
	setString(m, "km_driven", r.KmDriven.String())
	if r.HoursWorked.Valid {
		setString(m, "hours_worked", r.HoursWorked.Decimal.String())
	}
	if r.AdditionalCosts.Valid {
		setString(m, "additional_costs", r.AdditionalCosts.Decimal.String())
	}
}

func recordFromWire(m protoreflect.Message) (model.Record, error) {
	r := model.Record{ID: getString(m, "id"), Date: getString(m, "date")}
	var err error
	if r.TotalEarnings, err = amount(m, "total_earnings"); err != nil {
		return model.Record{}, err
	}
	if r.KmDriven, err = amount(m, "km_driven"); err != nil {
		return model.Record{}, err
	}
	if r.HoursWorked, err = optionalAmount(m, "hours_worked"); err != nil {
		return model.Record{}, err
	}
	if r.AdditionalCosts, err = optionalAmount(m, "additional_costs"); err != nil {
		return model.Record{}, err
	}
	return r, nil
}

func amount(m protoreflect.Message, name protoreflect.Name) (decimal.Decimal, error) {
	s := getString(m, name)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("record %s: missing", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("record %s: %w", name, err)
	}
	return d, nil
}

func optionalAmount(m protoreflect.Message, name protoreflect.Name) (decimal.NullDecimal, error) {
	if getString(m, name) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := amount(m, name)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func (*UpsertRecordRequest) descriptor() protoreflect.MessageDescriptor {
	return upsertRecordRequestDesc
}

func (r *UpsertRecordRequest) toWire(m protoreflect.Message) {
	if r == nil {
		return
	}
	setString(m, "operation_id", r.OperationID)
	recordToWire(r.Record, m.Mutable(m.Descriptor().Fields().ByName("record")).Message())
}

func (r *UpsertRecordRequest) fromWire(m protoreflect.Message) error {
	fd := m.Descriptor().Fields().ByName("record")
	if !m.Has(fd) {
		return fmt.Errorf("upsert: record is required")
	}
	rec, err := recordFromWire(m.Get(fd).Message())
	if err != nil {
		return err
	}
	r.OperationID = getString(m, "operation_id")
	r.Record = rec
	return nil
}

func (*DeleteRecordRequest) descriptor() protoreflect.MessageDescriptor {
	return deleteRecordRequestDesc
}

func (r *DeleteRecordRequest) toWire(m protoreflect.Message) {
	if r == nil {
		return
	}
	setString(m, "operation_id", r.OperationID)
	setString(m, "id", r.ID)
}

func (r *DeleteRecordRequest) fromWire(m protoreflect.Message) error {
	r.OperationID = getString(m, "operation_id")
	r.ID = getString(m, "id")
	return nil
}

func (*ListRecordsResponse) descriptor() protoreflect.MessageDescriptor {
	return listRecordsResponseDesc
}

func (r *ListRecordsResponse) toWire(m protoreflect.Message) {
	if r == nil || len(r.Records) == 0 {
		return
	}
	list := m.Mutable(m.Descriptor().Fields().ByName("records")).List()
	for _, rec := range r.Records {
		v := list.NewElement()
		recordToWire(rec, v.Message())
		list.Append(v)
	}
}

func (r *ListRecordsResponse) fromWire(m protoreflect.Message) error {
	list := m.Get(m.Descriptor().Fields().ByName("records")).List()
	r.Records = make([]model.Record, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		rec, err := recordFromWire(list.Get(i).Message())
		if err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		r.Records = append(r.Records, rec)
	}
	return nil
}

// Messages without fields.

func (*UpsertRecordResponse) descriptor() protoreflect.MessageDescriptor {
	return upsertRecordResponseDesc
}
func (*UpsertRecordResponse) toWire(protoreflect.Message)         {}
func (*UpsertRecordResponse) fromWire(protoreflect.Message) error { return nil }

func (*DeleteRecordResponse) descriptor() protoreflect.MessageDescriptor {
	return deleteRecordResponseDesc
}
func (*DeleteRecordResponse) toWire(protoreflect.Message)         {}
func (*DeleteRecordResponse) fromWire(protoreflect.Message) error { return nil }

func (*ListRecordsRequest) descriptor() protoreflect.MessageDescriptor {
	return listRecordsRequestDesc
}
func (*ListRecordsRequest) toWire(protoreflect.Message)         {}
func (*ListRecordsRequest) fromWire(protoreflect.Message) error { return nil }
