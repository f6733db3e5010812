package command

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, w WorkerControl) (socket string, stop func()) {
	t.Helper()
	socket = filepath.Join(t.TempDir(), "acquisitiond.sock")
	srv := NewUDSServer(socket, NewHandler(w))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		srv.Start(ctx)
	}()
	<-started
	// give the listener a moment to bind before the first dial
	time.Sleep(50 * time.Millisecond)

	return socket, cancel
}

func TestUDSClientServerRoundTrip(t *testing.T) {
	w := &fakeWorker{pauseReturn: true}
	socket, stop := startTestServer(t, w)
	defer stop()

	client := NewUDSClient(socket, 2*time.Second)
	resp, err := client.Pause(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok, "Result type = %T", resp.Result)
	assert.Equal(t, true, result["accepted"])
	assert.True(t, w.pauseCalled, "server-side Pause() not invoked")
}

func TestUDSClientRetakeRoundTrip(t *testing.T) {
	w := &fakeWorker{retakeReturn: true}
	socket, stop := startTestServer(t, w)
	defer stop()

	client := NewUDSClient(socket, 2*time.Second)
	resp, err := client.Retake(context.Background(), RetakeParams{
		FOVs: []acqtypes.FOVID{{RegionID: "A", Index: 0}},
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	require.Len(t, w.retakeFOVs, 1)
	assert.Equal(t, "A", w.retakeFOVs[0].RegionID)
}

func TestUDSClientUnknownMethodSurfacesError(t *testing.T) {
	w := &fakeWorker{}
	socket, stop := startTestServer(t, w)
	defer stop()

	client := NewUDSClient(socket, 2*time.Second)
	resp, err := client.Call(context.Background(), "bogus", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestUDSClientDialFailureReturnsError(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "nonexistent.sock"), 200*time.Millisecond)
	_, err := client.Status(context.Background())
	assert.Error(t, err)
}

func TestUDSServerStopIsIdempotent(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "acquisitiond.sock")
	srv := NewUDSServer(socket, NewHandler(&fakeWorker{}))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		srv.Start(ctx)
	}()
	<-started
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, srv.Stop())
}
