// Package serialmux multiplexes a line-oriented byte stream (a serial
// port, a recorded file or stdin) to several subscribers, and accepts
// commands for the device on the other end.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// MaxLineBytes bounds a single line. A sample of 512 beams by 2000 bins
// encoded as JSON stays well below it.
const MaxLineBytes = 64 * 1024 * 1024

// SerialMux fans the lines read from a port out to every subscriber.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
	buffer       int
	lossless     bool
}

// SerialMuxInterface is the subset of SerialMux used by consumers.
type SerialMuxInterface interface {
	// Subscribe creates a channel receiving every line read from the port.
	// The returned id identifies it when unsubscribing.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
	// Monitor reads lines until the port is exhausted or ctx is done.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
	// AttachAdminRoutes mounts debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Option configures a SerialMux.
type Option func(*muxOptions)

type muxOptions struct {
	buffer   int
	lossless bool
}

// WithSubscriberBuffer sets the channel capacity given to subscribers.
// With the default of 0 a subscriber that is not ready to receive misses
// the line.
func WithSubscriberBuffer(n int) Option {
	return func(o *muxOptions) { o.buffer = n }
}

// WithLossless makes Monitor wait for every subscriber to take each line
// instead of dropping it. Meant for recorded input, where the reader should
// follow the consumer rather than the device clock. A subscriber must keep
// reading until it unsubscribes or Monitor's context is cancelled.
func WithLossless() Option {
	return func(o *muxOptions) { o.lossless = true }
}

// NewSerialMux creates a SerialMux reading from port.
func NewSerialMux[T SerialPorter](port T, opts ...Option) *SerialMux[T] {
	var o muxOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		buffer:      o.buffer,
		lossless:    o.lossless,
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, s.buffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand writes command to the port, adding a trailing newline.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and delivers them to subscribers. It
// returns nil when the port reaches EOF, ctx.Err() on cancellation and the
// read error otherwise.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs in its own goroutine so that cancellation is
	// observed even while the port is silent.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			if err := s.deliver(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (s *SerialMux[T]) deliver(ctx context.Context, line string) error {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		if s.lossless {
			select {
			case ch <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case ch <- line:
		default:
			// subscriber not ready; drop rather than stall the port
		}
	}
	return nil
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Sent Events stream of the lines read from the port. Sample
	// lines are summarised since the raw intensities are large.
	debug.HandleFunc("tail", "live tail of incoming frames (SSE)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				var buf bytes.Buffer
				fmt.Fprintf(&buf, "data: %s\n\n", Summarize(payload))
				if _, err := w.Write(buf.Bytes()); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
