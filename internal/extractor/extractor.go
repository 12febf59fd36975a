package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

var (
	ErrEmptyResult    = errors.New("extractor returned no template")
	ErrShapeMismatch  = errors.New("mask rows do not match template rows")
	ErrNoValidRegion  = errors.New("no valid region in image")
	ErrUnknownKind    = errors.New("unknown extractor kind")
	ErrCommandMissing = errors.New("extractor command is not set")
)

// Extractor turns one image into a template, a mask and a quality score.
// singleThread asks the implementation not to parallelize internally.
type Extractor interface {
	Extract(ctx context.Context, path string, singleThread bool) (*domain.ExtractionResult, error)
}

type ExtractorFunc func(ctx context.Context, path string, singleThread bool) (*domain.ExtractionResult, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string, singleThread bool) (*domain.ExtractionResult, error) {
	return f(ctx, path, singleThread)
}

// ExtractionError ties an extraction failure to its source file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("extract %s: %v", e.Path, e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// Adapter runs an Extractor with internal parallelism disabled; the worker
// pool parallelizes across files instead.
type Adapter struct {
	ext Extractor
}

func NewAdapter(ext Extractor) *Adapter {
	return &Adapter{ext: ext}
}

func (a *Adapter) Extract(ctx context.Context, src domain.SourceFile) (*domain.ExtractionResult, error) {
	res, err := a.ext.Extract(ctx, src.Path, true)
	if err != nil {
		return nil, &ExtractionError{Path: src.Path, Err: err}
	}
	if err := Validate(res); err != nil {
		return nil, &ExtractionError{Path: src.Path, Err: err}
	}
	return res, nil
}

// Validate checks the shape invariants of an extraction result.
func Validate(res *domain.ExtractionResult) error {
	if res == nil || res.Template.Empty() {
		return ErrEmptyResult
	}
	if err := res.Template.Check(); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	if err := res.Mask.Check(); err != nil {
		return fmt.Errorf("mask: %w", err)
	}
	if res.Mask.Rows != res.Template.Rows {
		return fmt.Errorf("%w: template %dx%d, mask %dx%d", ErrShapeMismatch,
			res.Template.Rows, res.Template.Cols, res.Mask.Rows, res.Mask.Cols)
	}
	return nil
}
