package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/agnivade/aprilvoice/audio"
)

type execEngine struct {
	cmd []string
	cfg Config
}

// NewExecEngine parses cfg.Command and checks that the binary and model exist.
func NewExecEngine(cfg Config) (Engine, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("command not found: %w", err)
	}
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
	}
	return &execEngine{cmd: args, cfg: cfg}, nil
}

func (e *execEngine) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	file, err := os.CreateTemp("", "aprilvoice_local_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.WriteWAV(file, pcm); err != nil {
		return Result{}, err
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("command failed: %w: %s", err, stderr.String())
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

func (e *execEngine) Close() error {
	return nil
}
