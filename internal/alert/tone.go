package alert

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Tone 提示音参数
type Tone struct {
	Frequency  float64       // Hz
	Duration   time.Duration // 小于 1 秒
	Decay      time.Duration // 指数衰减时间常数
	Volume     float64       // 0..1
	SampleRate int
}

// DefaultTone 880Hz，300ms，指数衰减
func DefaultTone() Tone {
	return Tone{
		Frequency:  880,
		Duration:   300 * time.Millisecond,
		Decay:      80 * time.Millisecond,
		Volume:     0.6,
		SampleRate: 44100,
	}
}

// Samples 生成 16 位单声道 PCM 采样
func (t Tone) Samples() []int16 {
	n := int(float64(t.SampleRate) * t.Duration.Seconds())
	samples := make([]int16, n)
	tau := t.Decay.Seconds()
	for i := range samples {
		sec := float64(i) / float64(t.SampleRate)
		envelope := math.Exp(-sec / tau)
		v := t.Volume * envelope * math.Sin(2*math.Pi*t.Frequency*sec)
		samples[i] = int16(v * math.MaxInt16)
	}
	return samples
}

// WAV 编码为 WAV（RIFF，PCM 16 位单声道）
func (t Tone) WAV() []byte {
	samples := t.Samples()
	dataSize := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))             // fmt chunk 大小
	binary.Write(&buf, binary.LittleEndian, uint16(1))              // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))              // 单声道
	binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate))   // 采样率
	binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate*2)) // 字节率
	binary.Write(&buf, binary.LittleEndian, uint16(2))              // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))             // 位深

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
