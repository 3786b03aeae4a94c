package alert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Player 音频输出
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// CommandPlayer 通过外部命令播放（WAV 从 stdin 输入），如 "aplay -q -"
type CommandPlayer struct {
	args []string
}

// NewCommandPlayer 解析播放命令
func NewCommandPlayer(command string) *CommandPlayer {
	return &CommandPlayer{args: strings.Fields(command)}
}

// Available 播放命令是否存在
func (p *CommandPlayer) Available() error {
	if len(p.args) == 0 {
		return fmt.Errorf("audio player command is empty")
	}
	if _, err := exec.LookPath(p.args[0]); err != nil {
		return fmt.Errorf("audio player not found: %w", err)
	}
	return nil
}

func (p *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	if err := p.Available(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, p.args[0], p.args[1:]...)
	cmd.Stdin = bytes.NewReader(wav)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio player failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
