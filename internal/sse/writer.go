package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Prepare sets the event-stream headers and returns the flusher. It fails when
// the writer cannot stream.
func Prepare(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, nil
}

// WriteMessage writes a SSE message to the response writer
func WriteMessage(w http.ResponseWriter, flusher http.Flusher, data any) error {
	return WriteEvent(w, flusher, "", data)
}

// WriteEvent writes a named SSE event. An empty name writes a plain message.
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

// WriteComment writes a comment line, used as a keep-alive.
func WriteComment(w http.ResponseWriter, flusher http.Flusher, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
