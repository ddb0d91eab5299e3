package player

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errUnknownRecord = errors.New("neither event nor response")

// Record is one decoded IPC line: Event, Response or Malformed.
type Record interface {
	record()
}

// Event is an unsolicited notification such as "seek" or "start-file".
type Event struct {
	Name   string
	Fields map[string]json.RawMessage
}

// Response answers a command sent with a request_id.
type Response struct {
	RequestID int64
	Status    string
	Data      json.RawMessage
}

// Malformed is a line that is not valid JSON or carries neither an event nor
// a request_id.
type Malformed struct {
	Raw string
	Err error
}

func (Event) record()     {}
func (Response) record()  {}
func (Malformed) record() {}

// Field decodes the named event field into v. It returns false if the field is
// missing or has a different type.
func (e Event) Field(name string, v any) bool {
	raw, ok := e.Fields[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// OK reports whether mpv answered with "success".
func (r Response) OK() bool { return r.Status == "success" }

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response %d: no data", r.RequestID)
	}
	return json.Unmarshal(r.Data, v)
}

// Decode classifies a single line. It never fails; unparseable input becomes
// Malformed.
func Decode(line string) Record {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Malformed{Raw: line, Err: err}
	}
	if raw, ok := fields["event"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return Malformed{Raw: line, Err: fmt.Errorf("event name: %w", err)}
		}
		return Event{Name: name, Fields: fields}
	}
	if raw, ok := fields["request_id"]; ok {
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return Malformed{Raw: line, Err: fmt.Errorf("request_id: %w", err)}
		}
		var status string
		if s, ok := fields["error"]; ok {
			_ = json.Unmarshal(s, &status)
		}
		return Response{RequestID: id, Status: status, Data: fields["data"]}
	}
	return Malformed{Raw: line, Err: errUnknownRecord}
}
