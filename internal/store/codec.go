package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// EncodeFields serializes a draft's field map to a msgpack blob. Calendar
// dates are stored as their wire strings so a decoded draft round-trips
// through the same normalization path as user input.
func EncodeFields(fields map[string]any) ([]byte, error) {
	prepared := make(map[string]any, len(fields))
	for k, v := range fields {
		if d, ok := v.(schema.CalendarDate); ok {
			prepared[k] = d.String()
			continue
		}
		prepared[k] = v
	}
	blob, err := msgpack.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("encode draft fields: %w", err)
	}
	return blob, nil
}

// DecodeFields deserializes a draft field blob. Date fields come back as
// strings and are re-normalized when the owning step next validates.
func DecodeFields(blob []byte) (map[string]any, error) {
	if len(blob) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := msgpack.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("decode draft fields: %w", err)
	}
	return fields, nil
}
