package command

import (
	"context"
	"encoding/json"
	"testing"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	pauseCalled   bool
	resumeCalled  bool
	retakeFOVs    []acqtypes.FOVID
	abortCalled   bool
	proceedCalled bool
	status        any

	pauseReturn   bool
	resumeReturn  bool
	retakeReturn  bool
	proceedReturn bool
}

func (f *fakeWorker) Pause() bool  { f.pauseCalled = true; return f.pauseReturn }
func (f *fakeWorker) Resume() bool { f.resumeCalled = true; return f.resumeReturn }
func (f *fakeWorker) Retake(fovs []acqtypes.FOVID) bool {
	f.retakeFOVs = fovs
	return f.retakeReturn
}
func (f *fakeWorker) Abort()        { f.abortCalled = true }
func (f *fakeWorker) Proceed() bool { f.proceedCalled = true; return f.proceedReturn }
func (f *fakeWorker) Status() any   { return f.status }

func TestHandlePause(t *testing.T) {
	w := &fakeWorker{pauseReturn: true}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "pause", ID: "1"})
	assert.True(t, w.pauseCalled)
	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["accepted"])
	assert.Nil(t, resp.Error)
}

func TestHandleResume(t *testing.T) {
	w := &fakeWorker{resumeReturn: false}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "resume", ID: "1"})
	assert.True(t, w.resumeCalled)
	result := resp.Result.(map[string]any)
	assert.Equal(t, false, result["accepted"])
}

func TestHandleRetakeParsesParams(t *testing.T) {
	w := &fakeWorker{retakeReturn: true}
	h := NewHandler(w)

	params, _ := json.Marshal(RetakeParams{FOVs: []acqtypes.FOVID{{RegionID: "A", Index: 1}}})
	resp := h.Handle(context.Background(), Command{Method: "retake", Params: params, ID: "1"})

	require.Len(t, w.retakeFOVs, 1)
	assert.Equal(t, "A", w.retakeFOVs[0].RegionID)
	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["accepted"])
}

func TestHandleRetakeInvalidParamsReturnsError(t *testing.T) {
	w := &fakeWorker{}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "retake", Params: json.RawMessage(`{bad json`), ID: "1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestHandleAbort(t *testing.T) {
	w := &fakeWorker{}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "abort", ID: "1"})
	assert.True(t, w.abortCalled)
	assert.Equal(t, true, resp.Result.(map[string]any)["accepted"])
}

func TestHandleProceed(t *testing.T) {
	w := &fakeWorker{proceedReturn: true}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "proceed", ID: "1"})
	assert.True(t, w.proceedCalled)
	assert.Equal(t, true, resp.Result.(map[string]any)["accepted"])
}

func TestHandleStatusReturnsWorkerStatus(t *testing.T) {
	w := &fakeWorker{status: map[string]any{"timepoint": 3}}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "status", ID: "1"})
	result := resp.Result.(map[string]any)
	assert.Equal(t, 3, result["timepoint"])
}

func TestHandleUnknownMethod(t *testing.T) {
	w := &fakeWorker{}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "nonexistent", ID: "1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestResponseIDEchoesRequestID(t *testing.T) {
	w := &fakeWorker{}
	h := NewHandler(w)

	resp := h.Handle(context.Background(), Command{Method: "status", ID: "req-42"})
	assert.Equal(t, "req-42", resp.ID)
}
