package serialmux

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates an httptest request that appears to come from
// localhost so that tsweb.AllowDebugAccess lets it through.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestSerialMux_MonitorDeliversLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("first\nsecond\n"))
	mux := NewSerialMux(port, WithSubscriberBuffer(4))

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()
	require.NotEmpty(t, id1)

	require.NoError(t, mux.Monitor(context.Background()), "EOF ends Monitor without error")

	for _, ch := range []chan string{ch1, ch2} {
		assert.Equal(t, "first", <-ch)
		assert.Equal(t, "second", <-ch)
	}
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after Unsubscribe")

	// unknown ids are ignored
	mux.Unsubscribe("does-not-exist")
}

func TestSerialMux_MonitorCancellation(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancellation")
	}
	require.NoError(t, port.Close())
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	readErr := errors.New("device unplugged")
	port.ReadError = readErr
	mux := NewSerialMux(port)

	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, readErr)
}

func TestSerialMux_SendCommand(t *testing.T) {
	t.Run("appends newline", func(t *testing.T) {
		port := NewTestableSerialPort()
		mux := NewSerialMux(port)

		require.NoError(t, mux.SendCommand("PING"))
		require.NoError(t, mux.SendCommand("RANGE 50\n"))
		assert.Equal(t, "PING\nRANGE 50\n", string(port.GetWrittenData()))
	})

	t.Run("write error", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.WriteError = errors.New("boom")
		err := NewSerialMux(port).SendCommand("PING")
		assert.EqualError(t, err, "boom")
	})

	t.Run("short write", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.ShortWrite = true
		err := NewSerialMux(port).SendCommand("PING")
		assert.ErrorIs(t, err, ErrWriteFailed)
	})

	t.Run("read-only source", func(t *testing.T) {
		mux := NewReaderSerialMux(io.NopCloser(strings.NewReader("")))
		assert.ErrorIs(t, mux.SendCommand("PING"), ErrReadOnly)
	})
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.IsClosed())
}

func TestNewReaderSerialMux(t *testing.T) {
	mux := NewReaderSerialMux(io.NopCloser(strings.NewReader("a\n\nb")), WithSubscriberBuffer(8))
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	require.NoError(t, mux.Close())

	var got []string
	for line := range ch {
		got = append(got, line)
	}
	assert.Equal(t, []string{"a", "", "b"}, got)
}

func TestNewMockSerialMux(t *testing.T) {
	mux := NewMockSerialMux([]string{"one", "two\n"}, time.Millisecond, WithSubscriberBuffer(16))
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	assert.Equal(t, "one", <-ch)
	assert.Equal(t, "two", <-ch)
	assert.Equal(t, "one", <-ch, "lines are replayed cyclically")
	require.NoError(t, mux.SendCommand("ignored"))
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		form           url.Values
		expectedStatus int
		expectedWrite  string
	}{
		{"valid command", http.MethodPost, url.Values{"command": {"PING"}}, http.StatusOK, "PING\n"},
		{"empty command", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest, ""},
		{"missing command", http.MethodPost, url.Values{}, http.StatusBadRequest, ""},
		{"wrong method", http.MethodGet, url.Values{}, http.StatusMethodNotAllowed, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			port := NewTestableSerialPort()
			mux := NewSerialMux(port)
			httpMux := http.NewServeMux()
			mux.AttachAdminRoutes(httpMux)

			req := localHostRequest(tc.method, "/debug/send-command-api", strings.NewReader(tc.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.expectedWrite, string(port.GetWrittenData()))
		})
	}
}

func TestAttachAdminRoutes_TailStreamsSummaries(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port, WithSubscriberBuffer(4))
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ping, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	// The handler subscribed before sending the ping.
	port.AddReadData([]byte("# recorded on bench\n"))
	require.NoError(t, mux.Monitor(context.Background()))

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			assert.Equal(t, "data: # recorded on bench\n", line)
			break
		}
	}
}

func TestSerialMux_Lossless(t *testing.T) {
	port := NewTestableSerialPort()
	for i := 0; i < 50; i++ {
		port.AddReadData([]byte("line\n"))
	}
	mux := NewSerialMux(port, WithLossless())
	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	for i := 0; i < 50; i++ {
		select {
		case line := <-ch:
			assert.Equal(t, "line", line)
		case <-time.After(2 * time.Second):
			t.Fatalf("line %d was not delivered", i)
		}
	}
	require.NoError(t, <-done)
}
