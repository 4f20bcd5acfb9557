package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/runwatch/internal/monitor"
)

func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := s.hub.Subscribe()
	defer cancel()

	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	for _, a := range s.hub.Since(lastID) {
		if err := writeSSE(w, a); err != nil {
			return
		}
		lastID = a.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case a, ok := <-ch:
			if !ok {
				return
			}
			if a.ID <= lastID {
				continue
			}
			if err := writeSSE(w, a); err != nil {
				return
			}
			lastID = a.ID
			flusher.Flush()
		case <-keepAlive.C:
			// SSE comment line as keep-alive.
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeSSE(w http.ResponseWriter, a monitor.Activity) error {
	if _, err := fmt.Fprintf(w, "id: %d\n", a.ID); err != nil {
		return err
	}
	if a.Kind != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", a.Kind); err != nil {
			return err
		}
	}
	// Data is single-line JSON.
	if _, err := fmt.Fprintf(w, "data: %s\n\n", a.Data); err != nil {
		return err
	}
	return nil
}
