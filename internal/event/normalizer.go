package event

import (
	"encoding/json"

	"beacon/internal/constants"
	"beacon/pkg/errors"
)

// Shape tags the structural form of an inbound payload.
type Shape string

const (
	ShapeBulk   Shape = "bulk"
	ShapeArray  Shape = "array"
	ShapeSingle Shape = "single"
)

const (
	bulkRowsField      = "rows"
	bulkEventDataField = "event_data"
)

// Payload is the tagged result of shape classification. Bulk payloads carry
// the shared fields once; array and single payloads only fill Rows.
type Payload struct {
	Shape  Shape
	Common Record
	Rows   []Record
}

// ParsePayload classifies a raw JSON body by trying structural patterns in
// fixed priority order: bulk, then array, then single. Bulk is probed first
// because it is the most specific shape; an object that merely contains a
// `rows` field is claiming to be bulk and fails hard if the rows are
// malformed rather than being silently reread as a single event.
func ParsePayload(raw []byte) (*Payload, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, errors.ErrInvalidPayloadShape.WithCause(err)
	}

	switch v := value.(type) {
	case map[string]interface{}:
		if rows, ok := v[bulkRowsField]; ok {
			return parseBulk(v, rows)
		}
		return &Payload{Shape: ShapeSingle, Rows: []Record{Record(v)}}, nil
	case []interface{}:
		return parseArray(v)
	default:
		return nil, errors.ErrInvalidPayloadShape.WithMessage("event payload must be an object or an array")
	}
}

func parseBulk(outer map[string]interface{}, rowsValue interface{}) (*Payload, error) {
	rows, ok := rowsValue.([]interface{})
	if !ok {
		return nil, errors.ErrInvalidPayloadShape.WithMessage("bulk `rows` must be an array")
	}

	common := make(Record, len(outer)-1)
	for k, v := range outer {
		if k != bulkRowsField {
			common[k] = v
		}
	}

	records := make([]Record, 0, len(rows))
	for _, rowValue := range rows {
		row, ok := rowValue.(map[string]interface{})
		if !ok {
			return nil, errors.ErrInvalidPayloadShape.WithMessage("bulk row must be an object")
		}
		eventData, ok := row[bulkEventDataField].(map[string]interface{})
		if !ok {
			return nil, errors.ErrInvalidPayloadShape.WithMessage("bulk row missing `event_data` object")
		}
		records = append(records, Record(eventData))
	}

	return &Payload{Shape: ShapeBulk, Common: common, Rows: records}, nil
}

func parseArray(items []interface{}) (*Payload, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.ErrInvalidPayloadShape.WithMessage("array elements must be objects")
		}
		records = append(records, Record(obj))
	}
	return &Payload{Shape: ShapeArray, Rows: records}, nil
}

// Records materializes the payload into independent event records. For bulk
// payloads each row is merged over a clone of the common fields, row fields
// winning on collision. Every record lacking `ip_addr` gets defaultIP.
func (p *Payload) Records(defaultIP string) []Record {
	records := make([]Record, 0, len(p.Rows))
	for _, row := range p.Rows {
		var rec Record
		if p.Shape == ShapeBulk {
			rec = p.Common.Clone()
			for k, v := range row {
				rec[k] = v
			}
		} else {
			rec = row
		}

		if !rec.Has(constants.FieldIPAddr) && defaultIP != "" {
			rec.Set(constants.FieldIPAddr, defaultIP)
		}

		records = append(records, rec)
	}
	return records
}

// Normalize parses and materializes in one step.
func Normalize(raw []byte, defaultIP string) ([]Record, Shape, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return nil, "", err
	}
	return payload.Records(defaultIP), payload.Shape, nil
}
