package transcript

import (
	"fmt"

	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MarshalSnapshot encodes entries as a protobuf ListValue of structs.
func MarshalSnapshot(entries []Entry) ([]byte, error) {
	values := lo.Map(entries, func(e Entry, _ int) *structpb.Value {
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"username":  structpb.NewStringValue(e.Username),
			"text":      structpb.NewStringValue(e.Text),
			"createdAt": structpb.NewStringValue(e.CreatedAt),
			"system":    structpb.NewBoolValue(e.System),
		}})
	})

	data, err := proto.Marshal(&structpb.ListValue{Values: values})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes bytes produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) ([]Entry, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	entries := make([]Entry, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("failed to decode snapshot: entry %d is not a struct", i)
		}
		var e Entry
		e.Username = fields["username"].GetStringValue()
		e.Text = fields["text"].GetStringValue()
		e.CreatedAt = fields["createdAt"].GetStringValue()
		e.System = fields["system"].GetBoolValue()
		entries = append(entries, e)
	}
	return entries, nil
}
