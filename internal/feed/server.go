// Package feed receives wireless advertisement sample batches over HTTP
// and publishes them to the event bus. Any scanner that can POST JSON can
// act as a source, e.g. an ESP32 beacon relay.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/presenced/internal/eventbus"
	"github.com/dokzlo13/presenced/internal/proximity"
)

// Server is an HTTP server that receives advertisement batches and
// publishes them to the bus.
type Server struct {
	addr       string
	bus        *eventbus.Bus
	httpServer *http.Server
}

// NewServer creates a new feed server.
func NewServer(host string, port int, bus *eventbus.Bus) *Server {
	return &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		bus:  bus,
	}
}

// Run starts the feed server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/advertisements", s.handleAdvertisements)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting advertisement feed server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Feed server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// handleAdvertisements parses a batch of samples and publishes it.
// Accepts a bare JSON array of {rssi, time} objects; missing timestamps are
// filled with the receive time.
func (s *Server) handleAdvertisements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var samples []proximity.Sample
	if err := json.NewDecoder(r.Body).Decode(&samples); err != nil {
		log.Warn().Err(err).Msg("Failed to decode advertisement batch")
		http.Error(w, "invalid sample batch", http.StatusBadRequest)
		return
	}

	now := time.Now()
	for i := range samples {
		if samples[i].Time.IsZero() {
			samples[i].Time = now
		}
	}

	log.Debug().Int("samples", len(samples)).Msg("Received advertisement batch")

	s.bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeProximity,
		Samples: samples,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","samples":%d}`, len(samples))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
