package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-posture/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PredictPath 推理接口路径
const PredictPath = "/predict/"

// PredictRequest 推理请求
type PredictRequest struct {
	ImageBase64 string `json:"image_base64"` // data URL 形式的 PNG
}

// PredictResponse 推理响应；Good 缺失视为失败
type PredictResponse struct {
	Good      *bool       `json:"good"`
	Keypoints [][]float64 `json:"keypoints"` // [[row, col], ...]
}

// Client 坐姿分类服务客户端（每次采样一次请求，不重试）
type Client struct {
	httpClient *resty.Client
	subset     models.KeypointSubset
	logger     *zap.Logger
}

// NewClient 创建分类客户端
func NewClient(baseURL string, timeout time.Duration, subset models.KeypointSubset, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		subset:     subset,
		logger:     logger,
	}
}

// Classify 发送一帧并返回分类结果
// 任何失败（网络、非 2xx、响应格式错误）都返回 Unknown 结果，不向上抛错
func (c *Client) Classify(ctx context.Context, seq uint64, dataURL string) models.ClassificationResult {
	result, err := c.classify(ctx, seq, dataURL)
	if err != nil {
		c.logger.Warn("Posture classification failed",
			zap.Uint64("seq", seq),
			zap.Error(err),
		)
		return models.UnknownResult(seq)
	}

	c.logger.Debug("Posture classified",
		zap.Uint64("seq", seq),
		zap.Stringer("verdict", result.Verdict),
		zap.Int("keypoint_count", len(result.Keypoints)),
	)
	return result
}

func (c *Client) classify(ctx context.Context, seq uint64, dataURL string) (models.ClassificationResult, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(PredictRequest{ImageBase64: dataURL}).
		Post(PredictPath)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to call inference service: %w", err)
	}

	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return models.ClassificationResult{}, fmt.Errorf("inference service returned HTTP %d: %s", resp.StatusCode(), body)
	}

	var response PredictResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to unmarshal inference response: %w", err)
	}
	if response.Good == nil {
		return models.ClassificationResult{}, fmt.Errorf("inference response missing verdict")
	}

	keypoints, err := ParseKeypoints(response.Keypoints, c.subset)
	if err != nil {
		return models.ClassificationResult{}, err
	}

	verdict := models.VerdictBad
	if *response.Good {
		verdict = models.VerdictGood
	}

	return models.ClassificationResult{
		Seq:         seq,
		Verdict:     verdict,
		Keypoints:   keypoints,
		CompletedAt: time.Now(),
	}, nil
}

// ParseKeypoints 按截取策略转换关键点；下标与标准标签静态绑定
func ParseKeypoints(raw [][]float64, subset models.KeypointSubset) ([]models.Keypoint, error) {
	n := subset.Size()
	if len(raw) < n {
		n = len(raw)
	}

	keypoints := make([]models.Keypoint, 0, n)
	for i := 0; i < n; i++ {
		pair := raw[i]
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed keypoint %d: expected [row, col], got %d values", i, len(pair))
		}
		keypoints = append(keypoints, models.Keypoint{
			Index: i,
			Name:  models.KeypointNames[i],
			Row:   pair[0],
			Col:   pair[1],
		})
	}
	return keypoints, nil
}
