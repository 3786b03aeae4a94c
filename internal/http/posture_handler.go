package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"wisefido-posture/internal/sampler"
	"wisefido-posture/internal/service"

	"go.uber.org/zap"
)

// PostureSession HTTP 层依赖的会话接口（*service.PostureService 实现）
type PostureSession interface {
	Status() service.Status
	SetDisplay(width, height int) error
	WriteOverlayPNG(w io.Writer) error
	WriteFramePNG(w io.Writer) error
	WriteViewPNG(w io.Writer) error
}

// PostureHandler 坐姿会话状态接口
type PostureHandler struct {
	session PostureSession
	logger  *zap.Logger
}

func NewPostureHandler(session PostureSession, logger *zap.Logger) *PostureHandler {
	return &PostureHandler{session: session, logger: logger}
}

// GET /api/v1/posture/status
func (h *PostureHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.session.Status()))
}

// PUT /api/v1/posture/display
// body: { "width": 640, "height": 480 }
func (h *PostureHandler) PutDisplay(w http.ResponseWriter, r *http.Request) {
	var req service.Display
	if err := readBodyJSON(r, 1<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.session.SetDisplay(req.Width, req.Height); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(req))
}

// GET /api/v1/posture/overlay.png
func (h *PostureHandler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	h.writePNG(w, "overlay", h.session.WriteOverlayPNG)
}

// GET /api/v1/posture/frame.png
func (h *PostureHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	h.writePNG(w, "frame", h.session.WriteFramePNG)
}

// GET /api/v1/posture/view.png
func (h *PostureHandler) GetView(w http.ResponseWriter, r *http.Request) {
	h.writePNG(w, "view", h.session.WriteViewPNG)
}

// writePNG 先写入缓冲区，失败时仍可返回 JSON 错误
func (h *PostureHandler) writePNG(w http.ResponseWriter, name string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		if errors.Is(err, sampler.ErrNoFrame) {
			writeJSON(w, http.StatusNotFound, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to encode image", zap.String("image", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to encode image"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
