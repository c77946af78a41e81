package docker

import (
	"encoding/json"
	"io"

	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/melih/lighthouse/internal/core/ports"
)

// jsonStream decodes the engine's newline-delimited JSON messages into
// ports events. Progress-bar updates and aux payloads are dropped.
type jsonStream struct {
	dec     *json.Decoder
	closers []io.Closer
}

func newJSONStream(body io.ReadCloser, extra ...io.Closer) *jsonStream {
	return &jsonStream{
		dec:     json.NewDecoder(body),
		closers: append([]io.Closer{body}, extra...),
	}
}

func (s *jsonStream) Next() (ports.Event, error) {
	for {
		var msg jsonmessage.JSONMessage
		if err := s.dec.Decode(&msg); err != nil {
			return ports.Event{}, err
		}
		switch {
		case msg.Error != nil:
			return ports.Event{Kind: ports.EventError, Text: msg.Error.Message}, nil
		case msg.ErrorMessage != "":
			return ports.Event{Kind: ports.EventError, Text: msg.ErrorMessage}, nil
		case msg.Stream != "":
			return ports.Event{Kind: ports.EventLog, Text: msg.Stream}, nil
		case msg.Status != "" && (msg.Progress == nil || msg.Progress.Current == 0):
			text := msg.Status
			if msg.ID != "" {
				text = msg.ID + ": " + text
			}
			return ports.Event{Kind: ports.EventStatus, Text: text}, nil
		}
	}
}

func (s *jsonStream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
