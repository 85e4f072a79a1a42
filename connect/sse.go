package connect

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// maxEventLine bounds a single line of an event stream. Record batches are
// sent as one data line each.
const maxEventLine = 64 * 1024 * 1024

// Event is one Server-Sent Event.
type Event struct {
	// Name is the event type, "message" when the stream does not name it.
	Name string
	Data string
	ID   string
}

// EventReader reads Server-Sent Events from a response body.
type EventReader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewEventReader returns an EventReader reading from r.
func NewEventReader(r io.Reader) *EventReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	return &EventReader{scanner: s}
}

// Next returns the next event, or io.EOF once the stream ends. An event cut
// off by the end of the stream is still returned.
func (er *EventReader) Next() (Event, error) {
	var (
		name    string
		data    []string
		hasData bool
		seen    bool
	)
	for er.scanner.Scan() {
		line := strings.TrimSuffix(er.scanner.Text(), "\r")
		if line == "" {
			if !seen || (!hasData && name == "") {
				seen = false
				continue
			}
			return er.event(name, data), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}
		seen = true
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			er.lastID = value
		}
	}
	if err := er.scanner.Err(); err != nil {
		return Event{}, errors.Wrap(err, "reading event stream")
	}
	if hasData || name != "" {
		return er.event(name, data), nil
	}
	return Event{}, io.EOF
}

func (er *EventReader) event(name string, data []string) Event {
	if name == "" {
		name = "message"
	}
	return Event{Name: name, Data: strings.Join(data, "\n"), ID: er.lastID}
}
