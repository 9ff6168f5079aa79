package provider

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Event is one server-sent event block.
type Event struct {
	Name string
	Data string
}

// Decoder splits a byte stream into SSE events. Blocks are separated by a
// blank line; a block split across reads is held until its terminator
// arrives.
type Decoder struct {
	r      io.Reader
	buf    []byte
	remain []byte
	err    error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 4096)}
}

// Next returns the next event with non-empty data. Blocks without data and
// "[DONE]" sentinels are skipped. At end of input a trailing unterminated
// block is discarded and io.EOF is returned.
func (d *Decoder) Next() (Event, error) {
	for {
		if ev, ok := d.nextBlock(); ok {
			if ev.Data == "" || ev.Data == "[DONE]" {
				continue
			}
			return ev, nil
		}
		if d.err != nil {
			return Event{}, d.err
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.remain = append(d.remain, d.buf[:n]...)
			d.remain = bytes.ReplaceAll(d.remain, []byte("\r\n"), []byte("\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = err
			}
		}
	}
}

func (d *Decoder) nextBlock() (Event, bool) {
	i := bytes.Index(d.remain, []byte("\n\n"))
	if i < 0 {
		return Event{}, false
	}
	block := string(d.remain[:i])
	d.remain = d.remain[i+2:]
	return parseBlock(block), true
}

func parseBlock(block string) Event {
	var ev Event
	var data []string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	ev.Data = strings.Join(data, "\n")
	return ev
}
