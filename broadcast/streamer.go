// Package broadcast serves the annotated video as an MJPEG HTTP stream with
// a JSON sidebar of the current statistic lines and an exit-request endpoint
// polled by the frame loop.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hybridgroup/mjpeg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Streamer is the rendering sink: callers push a frame plus an ordered list
// of text lines once per loop iteration.
type Streamer struct {
	session string
	stream  *mjpeg.Stream
	server  *http.Server
	quality int
	logger  zerolog.Logger

	mu    sync.RWMutex
	lines []string

	exitRequested atomic.Bool
}

// NewStreamer creates a streamer listening on addr. quality is the JPEG
// encode quality (1-100).
func NewStreamer(addr string, quality int, logger zerolog.Logger) *Streamer {
	s := &Streamer{
		session: uuid.NewString(),
		stream:  mjpeg.NewStream(),
		quality: quality,
		logger:  logger.With().Str("component", "broadcast").Logger(),
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Streamer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.stream)
	mux.HandleFunc("/text", s.handleText)
	mux.HandleFunc("/quit", s.handleQuit)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the stream in the background.
func (s *Streamer) Start() {
	s.logger.Info().Str("addr", s.server.Addr).Str("session", s.session).Msg("streamer listening")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("streamer error")
		}
	}()
}

// SendData publishes a frame and the sidebar lines for this iteration.
func (s *Streamer) SendData(frame gocv.Mat, lines []string) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		s.logger.Warn().Err(err).Msg("jpeg encode failed, frame dropped")
	} else {
		s.stream.UpdateJPEG(buf.GetBytes())
		buf.Close()
	}

	s.mu.Lock()
	s.lines = append(s.lines[:0], lines...)
	s.mu.Unlock()
}

// CheckExit reports whether a viewer requested shutdown.
func (s *Streamer) CheckExit() bool {
	return s.exitRequested.Load()
}

// Shutdown stops the HTTP server gracefully.
func (s *Streamer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Streamer) handleText(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	lines := make([]string, len(s.lines))
	copy(lines, s.lines)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Session string   `json:"session"`
		Lines   []string `json:"lines"`
	}{Session: s.session, Lines: lines})
}

func (s *Streamer) handleQuit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.exitRequested.Store(true)
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("exit requested")
	w.WriteHeader(http.StatusOK)
}
