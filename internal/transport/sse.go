package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// errStreamConsumerGone aborts an SSE scan when the event channel's
// consumer cancelled.
var errStreamConsumerGone = errors.New("stream consumer gone")

var (
	ssePrefix = []byte("data: ")
	sseDone   = []byte("[DONE]")
)

// scanSSE reads a Server-Sent Events body line by line and invokes fn
// for every data payload. done is true for the [DONE] marker.
func scanSSE(r io.Reader, fn func(data []byte, done bool) error) error {
	scanner := bufio.NewScanner(r)
	// Larger buffer for potentially large chunks.
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, ssePrefix) {
			continue
		}
		data := bytes.TrimPrefix(line, ssePrefix)
		if bytes.Equal(data, sseDone) {
			if err := fn(nil, true); err != nil {
				return err
			}
			continue
		}
		if err := fn(data, false); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// unmarshalLoose decodes a chunk, tolerating fields we do not model.
func unmarshalLoose(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
