package ai

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// readEvents calls fn with the payload of every data line until [DONE] or EOF.
func readEvents(r io.Reader, fn func(payload []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if bytes.Equal(payload, doneMarker) {
			return nil
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan llm stream failed: %w", err)
	}
	return nil
}
