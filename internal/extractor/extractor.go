// Package extractor turns raw staged batch payloads into normalized event
// rows. It performs no I/O.
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mailtrail-systems/mailtrail/internal/models"
)

// ErrMalformedBatch indicates the staged payload could not be decoded into
// event rows. A single bad element fails the whole batch; partial extraction
// is never returned.
var ErrMalformedBatch = errors.New("malformed batch payload")

// envelopeKey is the single enclosing key the webhook wraps every event in.
const envelopeKey = "msys"

// Extract decodes a raw batch payload into its ordered event rows.
//
// The payload must be a JSON array. Each element carries a single-key "msys"
// envelope whose sole child (the event class, e.g. "message_event" or
// "track_event") holds the flat event object. Named columns are copied out of
// the flat object, defaulting to NULL when absent, and the flat object itself
// is retained verbatim as the serialized event payload. Output order matches
// input order.
func Extract(raw []byte) ([]models.EventRecord, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrMalformedBatch, err)
	}

	records := make([]models.EventRecord, 0, len(elements))
	for i, element := range elements {
		record, err := extractElement(element)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func extractElement(element json.RawMessage) (models.EventRecord, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(element, &wrapper); err != nil {
		return models.EventRecord{}, fmt.Errorf("%w: element is not an object: %v", ErrMalformedBatch, err)
	}

	envelope, ok := wrapper[envelopeKey]
	if !ok {
		return models.EventRecord{}, fmt.Errorf("%w: missing %q envelope", ErrMalformedBatch, envelopeKey)
	}

	var classes map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &classes); err != nil {
		return models.EventRecord{}, fmt.Errorf("%w: envelope is not an object: %v", ErrMalformedBatch, err)
	}
	if len(classes) != 1 {
		return models.EventRecord{}, fmt.Errorf("%w: envelope must contain exactly one event class, got %d", ErrMalformedBatch, len(classes))
	}

	var flat json.RawMessage
	for _, v := range classes {
		flat = v
	}

	fields, err := decodeFlat(flat)
	if err != nil {
		return models.EventRecord{}, err
	}

	record := models.EventRecord{
		// Compact the retained payload so equality checks and storage are
		// insensitive to source whitespace. Key order is preserved.
		Event: compact(flat),
	}

	if record.EventID, err = textField(fields, "event_id"); err != nil {
		return models.EventRecord{}, err
	}
	if record.Timestamp, err = intField(fields, "timestamp"); err != nil {
		return models.EventRecord{}, err
	}
	if record.Type, err = textField(fields, "type"); err != nil {
		return models.EventRecord{}, err
	}
	if record.BounceClass, err = intField(fields, "bounce_class"); err != nil {
		return models.EventRecord{}, err
	}
	if record.CampaignID, err = textField(fields, "campaign_id"); err != nil {
		return models.EventRecord{}, err
	}
	if record.FriendlyFrom, err = textField(fields, "friendly_from"); err != nil {
		return models.EventRecord{}, err
	}
	if record.MessageID, err = textField(fields, "message_id"); err != nil {
		return models.EventRecord{}, err
	}
	if record.Reason, err = textField(fields, "reason"); err != nil {
		return models.EventRecord{}, err
	}
	if record.RcptTo, err = textField(fields, "rcpt_to"); err != nil {
		return models.EventRecord{}, err
	}
	if record.SubaccountID, err = intField(fields, "subaccount_id"); err != nil {
		return models.EventRecord{}, err
	}
	if record.TemplateID, err = textField(fields, "template_id"); err != nil {
		return models.EventRecord{}, err
	}
	if record.TransmissionID, err = textField(fields, "transmission_id"); err != nil {
		return models.EventRecord{}, err
	}

	return record, nil
}

// decodeFlat decodes the flat event object keeping numbers as json.Number so
// numeric-looking values pass through without float conversion.
func decodeFlat(flat json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(flat))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: event is not an object: %v", ErrMalformedBatch, err)
	}
	return fields, nil
}

// textField reads a text column value. The source emits some identifiers as
// bare numbers, so json.Number is accepted and kept as its literal text.
func textField(fields map[string]any, name string) (*string, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case string:
		return &t, nil
	case json.Number:
		s := t.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: field %q is not a scalar", ErrMalformedBatch, name)
	}
}

// intField reads an integer column value, accepting both JSON numbers and
// numeric strings, which is the only coercion the relational insert requires.
func intField(fields map[string]any, name string) (*int64, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, nil
	}

	var literal string
	switch t := v.(type) {
	case string:
		literal = t
	case json.Number:
		literal = t.String()
	default:
		return nil, fmt.Errorf("%w: field %q is not numeric", ErrMalformedBatch, name)
	}

	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not an integer: %v", ErrMalformedBatch, name, err)
	}
	return &n, nil
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		// Raw already validated as JSON by decodeFlat.
		return string(raw)
	}
	return buf.String()
}
