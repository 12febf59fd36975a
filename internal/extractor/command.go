package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

// singleThreadEnv pins the common native thread pools to one thread.
var singleThreadEnv = []string{
	"OMP_NUM_THREADS=1",
	"OPENBLAS_NUM_THREADS=1",
	"MKL_NUM_THREADS=1",
}

type CommandConfig struct {
	Command          string
	Args             []string
	SingleThreadFlag string
}

// CommandExtractor runs an external program as
// `<command> <args...> [singleThreadFlag] <image>` and reads a JSON object
// with "template", "mask" and "score" from its stdout.
type CommandExtractor struct {
	cfg CommandConfig
}

func NewCommandExtractor(cfg CommandConfig) (*CommandExtractor, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrCommandMissing
	}
	return &CommandExtractor{cfg: cfg}, nil
}

type commandOutput struct {
	Template json.RawMessage `json:"template"`
	Mask     json.RawMessage `json:"mask"`
	Score    float64         `json:"score"`
}

func (e *CommandExtractor) Extract(ctx context.Context, path string, singleThread bool) (*domain.ExtractionResult, error) {
	args := append([]string(nil), e.cfg.Args...)
	if singleThread && e.cfg.SingleThreadFlag != "" {
		args = append(args, e.cfg.SingleThreadFlag)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Env = os.Environ()
	if singleThread {
		cmd.Env = append(cmd.Env, singleThreadEnv...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", e.cfg.Command, err, lastLine(msg))
		}
		return nil, fmt.Errorf("run %s: %w", e.cfg.Command, err)
	}
	return ParseOutput(stdout.Bytes())
}

// ParseOutput decodes the JSON document printed by an external extractor.
func ParseOutput(b []byte) (*domain.ExtractionResult, error) {
	var out commandOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse extractor output: %w", err)
	}
	if len(out.Template) == 0 {
		return nil, ErrEmptyResult
	}
	tpl, err := parseMatrix(out.Template)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	if len(out.Mask) == 0 {
		return nil, fmt.Errorf("mask: missing")
	}
	mask, err := parseMatrix(out.Mask)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	return &domain.ExtractionResult{Template: tpl, Mask: mask, Score: out.Score}, nil
}

// parseMatrix accepts a rectangular 2-D JSON array of booleans or numbers.
// An all-boolean array becomes a logical matrix.
func parseMatrix(raw json.RawMessage) (domain.Matrix, error) {
	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return domain.Matrix{}, fmt.Errorf("expected a 2-D array: %w", err)
	}
	if len(rows) == 0 {
		return domain.Matrix{}, nil
	}
	cols := len(rows[0])
	m := domain.NewMatrix(len(rows), cols, true)
	for r, row := range rows {
		if len(row) != cols {
			return domain.Matrix{}, fmt.Errorf("row %d has %d columns, want %d", r, len(row), cols)
		}
		for c, v := range row {
			switch x := v.(type) {
			case bool:
				if x {
					m.Set(r, c, 1)
				}
			case float64:
				m.Logical = false
				m.Set(r, c, x)
			default:
				return domain.Matrix{}, fmt.Errorf("element [%d][%d] is %T", r, c, v)
			}
		}
	}
	return m, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
