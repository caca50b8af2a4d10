package chatclient

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// maxEventSize bounds a single line and the joined data of one event.
const maxEventSize = 2 * 1024 * 1024

// sseReader splits a text/event-stream body into events. Oversized events are
// skipped and reading continues with the next one.
type sseReader struct {
	rd  *bufio.Reader
	max int
	log zerolog.Logger
}

func newSSEReader(r io.Reader, log zerolog.Logger) *sseReader {
	return &sseReader{
		rd:  bufio.NewReaderSize(r, 64*1024),
		max: maxEventSize,
		log: log,
	}
}

// readLine returns the next line without its terminator. A line longer than r.max
// is consumed but not kept, and tooLong is set.
func (r *sseReader) readLine() (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.rd.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > r.max {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		return line, tooLong, err
	}
}

// Next returns the next dispatched event. A stream that ends mid-event drops the
// partial event and returns io.EOF.
func (r *sseReader) Next() (Event, error) {
	var (
		ev       Event
		data     bytes.Buffer
		hasData  bool
		oversize bool
	)
	for {
		raw, tooLong, err := r.readLine()
		if err != nil {
			return Event{}, err
		}
		if tooLong {
			oversize = true
			continue
		}

		line := string(raw)
		if line == "" {
			if oversize {
				r.log.Warn().Str("event", ev.Name).Int("limit", r.max).Msg("dropping oversized stream event")
				ev, hasData, oversize = Event{}, false, false
				data.Reset()
				continue
			}
			if !hasData {
				ev = Event{}
				continue
			}
			ev.Data = data.Bytes()
			return ev, nil
		}
		if oversize || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			if data.Len()+len(value)+1 > r.max {
				oversize = true
				continue
			}
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			ev.ID = value
		}
	}
}
