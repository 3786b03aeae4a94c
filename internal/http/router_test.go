package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wisefido-posture/internal/models"
	"wisefido-posture/internal/sampler"
	"wisefido-posture/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type fakeSession struct {
	status  service.Status
	display service.Display
	noFrame bool
	viewErr error
}

func (f *fakeSession) Status() service.Status { return f.status }

func (f *fakeSession) SetDisplay(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("invalid display size")
	}
	f.display = service.Display{Width: width, Height: height}
	return nil
}

func (f *fakeSession) WriteOverlayPNG(w io.Writer) error {
	_, err := w.Write(pngMagic)
	return err
}

func (f *fakeSession) WriteFramePNG(w io.Writer) error {
	if f.noFrame {
		return sampler.ErrNoFrame
	}
	_, err := w.Write(pngMagic)
	return err
}

func (f *fakeSession) WriteViewPNG(w io.Writer) error {
	if f.viewErr != nil {
		return f.viewErr
	}
	_, err := w.Write(pngMagic)
	return err
}

func serve(t *testing.T, session PostureSession, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	NewRouter(session, zap.NewNop()).ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(t, &fakeSession{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":2000`)
}

func TestGetStatus(t *testing.T) {
	session := &fakeSession{status: service.Status{
		Snapshot: models.Snapshot{
			SessionID:      "s1",
			Verdict:        models.VerdictBad,
			Status:         "Bad posture detected",
			Streak:         "bad",
			ElapsedSeconds: 61,
			KeypointCount:  1,
		},
		Keypoints: []models.Keypoint{{Index: 0, Name: "nose", Row: 96, Col: 128}},
		LastSeq:   7,
		Display:   service.Display{Width: 640, Height: 480},
	}}

	w := serve(t, session, http.MethodGet, "/api/v1/posture/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp Result[map[string]any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ResultSuccess, resp.Code)
	assert.Equal(t, "s1", resp.Result["session_id"])
	assert.Equal(t, "bad", resp.Result["verdict"])
	assert.Equal(t, "Bad posture detected", resp.Result["status"])
	assert.Equal(t, "bad", resp.Result["streak"])
	assert.Equal(t, float64(61), resp.Result["elapsed_seconds"])
	assert.Equal(t, float64(7), resp.Result["last_seq"])
	assert.Len(t, resp.Result["keypoints"], 1)
	assert.NotContains(t, resp.Result, "capture_error")
}

func TestPutDisplay(t *testing.T) {
	session := &fakeSession{}

	w := serve(t, session, http.MethodPut, "/api/v1/posture/display", `{"width":1280,"height":720}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.Display{Width: 1280, Height: 720}, session.display)

	w = serve(t, session, http.MethodPut, "/api/v1/posture/display", `{"width":0,"height":720}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":-1`)

	w = serve(t, session, http.MethodPut, "/api/v1/posture/display", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, session, http.MethodPut, "/api/v1/posture/display", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImages(t *testing.T) {
	for _, path := range []string{"overlay.png", "frame.png", "view.png"} {
		t.Run(path, func(t *testing.T) {
			w := serve(t, &fakeSession{}, http.MethodGet, "/api/v1/posture/"+path, "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.Equal(t, pngMagic, w.Body.Bytes())
		})
	}
}

func TestGetFrame_NoFrame(t *testing.T) {
	w := serve(t, &fakeSession{noFrame: true}, http.MethodGet, "/api/v1/posture/frame.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), sampler.ErrNoFrame.Error())
}

func TestGetView_EncodeError(t *testing.T) {
	w := serve(t, &fakeSession{viewErr: errors.New("boom")}, http.MethodGet, "/api/v1/posture/view.png", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestMethodNotAllowed(t *testing.T) {
	w := serve(t, &fakeSession{}, http.MethodPost, "/api/v1/posture/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
