package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 坐姿监测服务配置
type Config struct {
	Redis RedisConfig `yaml:"redis"`
	MQTT  MQTTConfig  `yaml:"mqtt"`

	// 坐姿服务特定配置
	Posture struct {
		// 推理服务（外部分类器）
		Inference struct {
			Endpoint  string `yaml:"endpoint"`   // 如 "http://127.0.0.1:8000"
			TimeoutMs int    `yaml:"timeout_ms"` // 单次请求超时（毫秒），不重试
		} `yaml:"inference"`

		// 视频源：Image 非空时使用静态图片，否则通过 ffmpeg 读取 Device
		Video struct {
			Device     string `yaml:"device"`
			Image      string `yaml:"image"`
			FFmpegPath string `yaml:"ffmpeg_path"`
			Width      int    `yaml:"width"`  // 采集分辨率
			Height     int    `yaml:"height"`
		} `yaml:"video"`

		SampleIntervalMs int    `yaml:"sample_interval_ms"` // 采样间隔，默认 1000
		StreakIntervalMs int    `yaml:"streak_interval_ms"` // 计时间隔，默认 1000
		KeypointSubset   string `yaml:"keypoint_subset"`    // upper13 / curated11 / all

		// 视频显示尺寸（渲染尺寸，不是采集分辨率）
		Display struct {
			Width  int `yaml:"width"`
			Height int `yaml:"height"`
		} `yaml:"display"`

		// 叠加层校正参数（经验值，可调）
		Overlay struct {
			XScale  float64 `yaml:"x_scale"`
			OffsetX float64 `yaml:"offset_x"` // 正向加到 x
			OffsetY float64 `yaml:"offset_y"` // 从 y 中减去
		} `yaml:"overlay"`

		Alert struct {
			Enabled   bool   `yaml:"enabled"`
			Player    string `yaml:"player"` // 播放命令，WAV 数据从 stdin 输入
			QueueSize int    `yaml:"queue_size"`
		} `yaml:"alert"`

		// Redis 实时快照
		Snapshot struct {
			KeyPrefix string `yaml:"key_prefix"` // 如 "posture:session:"
			Suffix    string `yaml:"suffix"`     // 如 ":realtime"
			TTL       int    `yaml:"ttl"`        // 秒
		} `yaml:"snapshot"`

		TopicPrefix string `yaml:"topic_prefix"` // MQTT 主题前缀
		HTTPAddr    string `yaml:"http_addr"`
	} `yaml:"posture"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 加载配置：默认值 -> 配置文件（POSTURE_CONFIG_FILE，可选） -> 环境变量
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("POSTURE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 默认配置（未读取配置文件与环境变量）
func Default() *Config {
	cfg := &Config{}

	cfg.Posture.Inference.Endpoint = "http://127.0.0.1:8000"
	cfg.Posture.Inference.TimeoutMs = 5000

	cfg.Posture.Video.Device = "/dev/video0"
	cfg.Posture.Video.FFmpegPath = "ffmpeg"
	cfg.Posture.Video.Width = 640
	cfg.Posture.Video.Height = 480

	cfg.Posture.SampleIntervalMs = 1000
	cfg.Posture.StreakIntervalMs = 1000
	cfg.Posture.KeypointSubset = "upper13"

	cfg.Posture.Display.Width = 640
	cfg.Posture.Display.Height = 480

	cfg.Posture.Overlay.XScale = 1.0
	cfg.Posture.Overlay.OffsetX = 5
	cfg.Posture.Overlay.OffsetY = 5

	cfg.Posture.Alert.Enabled = true
	cfg.Posture.Alert.Player = "aplay -q -"
	cfg.Posture.Alert.QueueSize = 4

	cfg.Posture.Snapshot.KeyPrefix = "posture:session:"
	cfg.Posture.Snapshot.Suffix = ":realtime"
	cfg.Posture.Snapshot.TTL = 30

	cfg.MQTT.ClientID = "wisefido-posture"
	cfg.MQTT.QoS = 1
	cfg.Posture.TopicPrefix = "posture"
	cfg.Posture.HTTPAddr = ":8090"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Redis.LoadFromEnv("REDIS")
	c.MQTT.LoadFromEnv("MQTT")

	p := &c.Posture
	p.Inference.Endpoint = getEnv("INFERENCE_ENDPOINT", p.Inference.Endpoint)
	p.Inference.TimeoutMs = getEnvInt("INFERENCE_TIMEOUT_MS", p.Inference.TimeoutMs)

	p.Video.Device = getEnv("VIDEO_DEVICE", p.Video.Device)
	p.Video.Image = getEnv("VIDEO_IMAGE", p.Video.Image)
	p.Video.FFmpegPath = getEnv("FFMPEG_PATH", p.Video.FFmpegPath)
	p.Video.Width = getEnvInt("VIDEO_WIDTH", p.Video.Width)
	p.Video.Height = getEnvInt("VIDEO_HEIGHT", p.Video.Height)

	p.SampleIntervalMs = getEnvInt("SAMPLE_INTERVAL_MS", p.SampleIntervalMs)
	p.StreakIntervalMs = getEnvInt("STREAK_INTERVAL_MS", p.StreakIntervalMs)
	p.KeypointSubset = getEnv("KEYPOINT_SUBSET", p.KeypointSubset)

	p.Display.Width = getEnvInt("DISPLAY_WIDTH", p.Display.Width)
	p.Display.Height = getEnvInt("DISPLAY_HEIGHT", p.Display.Height)

	p.Overlay.XScale = getEnvFloat("OVERLAY_X_SCALE", p.Overlay.XScale)
	p.Overlay.OffsetX = getEnvFloat("OVERLAY_OFFSET_X", p.Overlay.OffsetX)
	p.Overlay.OffsetY = getEnvFloat("OVERLAY_OFFSET_Y", p.Overlay.OffsetY)

	p.Alert.Enabled = getEnvBool("ALERT_ENABLED", p.Alert.Enabled)
	p.Alert.Player = getEnv("ALERT_PLAYER", p.Alert.Player)
	p.Alert.QueueSize = getEnvInt("ALERT_QUEUE_SIZE", p.Alert.QueueSize)

	p.Snapshot.KeyPrefix = getEnv("SNAPSHOT_KEY_PREFIX", p.Snapshot.KeyPrefix)
	p.Snapshot.TTL = getEnvInt("SNAPSHOT_TTL", p.Snapshot.TTL)

	p.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", p.TopicPrefix)
	p.HTTPAddr = getEnv("HTTP_ADDR", p.HTTPAddr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate 校验配置
func (c *Config) Validate() error {
	p := c.Posture
	if p.Inference.Endpoint == "" {
		return fmt.Errorf("inference endpoint is required")
	}
	if p.Inference.TimeoutMs <= 0 {
		return fmt.Errorf("invalid inference timeout: %d", p.Inference.TimeoutMs)
	}
	if p.SampleIntervalMs <= 0 || p.StreakIntervalMs <= 0 {
		return fmt.Errorf("invalid intervals: sample=%d streak=%d", p.SampleIntervalMs, p.StreakIntervalMs)
	}
	if p.Video.Width <= 0 || p.Video.Height <= 0 {
		return fmt.Errorf("invalid video size: %dx%d", p.Video.Width, p.Video.Height)
	}
	if p.Display.Width <= 0 || p.Display.Height <= 0 {
		return fmt.Errorf("invalid display size: %dx%d", p.Display.Width, p.Display.Height)
	}
	if p.Overlay.XScale <= 0 {
		return fmt.Errorf("invalid overlay x scale: %f", p.Overlay.XScale)
	}
	switch p.KeypointSubset {
	case "upper13", "curated11", "all":
	default:
		return fmt.Errorf("unknown keypoint subset: %s", p.KeypointSubset)
	}
	if p.Snapshot.TTL <= 0 {
		return fmt.Errorf("invalid snapshot ttl: %d", p.Snapshot.TTL)
	}
	if p.Alert.QueueSize <= 0 {
		return fmt.Errorf("invalid alert queue size: %d", p.Alert.QueueSize)
	}
	return nil
}

// SampleInterval 采样间隔
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Posture.SampleIntervalMs) * time.Millisecond
}

// StreakInterval 连续计时间隔
func (c *Config) StreakInterval() time.Duration {
	return time.Duration(c.Posture.StreakIntervalMs) * time.Millisecond
}

// InferenceTimeout 推理请求超时
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Posture.Inference.TimeoutMs) * time.Millisecond
}

// SnapshotTTL 快照过期时间
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Posture.Snapshot.TTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
