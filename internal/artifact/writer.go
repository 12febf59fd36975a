package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/osvaldoandrade/irisenroll/internal/matfile"
	"github.com/osvaldoandrade/irisenroll/internal/providers"
	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

const (
	Extension   = ".mat"
	ContentType = "application/x-matlab-data"

	FieldTemplate = "template"
	FieldMask     = "mask"
)

// Name derives the artifact file name from the source basename, so
// 001_1_1.jpg becomes 001_1_1.jpg.mat.
func Name(src domain.SourceFile) string { return src.Basename() + Extension }

// WriteError ties a persistence failure to its artifact name.
type WriteError struct {
	Artifact string
	Err      error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Artifact, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

type Writer interface {
	Write(ctx context.Context, name string, res *domain.ExtractionResult) (string, error)
}

type matWriter struct {
	store providers.Uploader
}

// NewMatWriter stores each result as a MAT-file holding exactly the
// template and mask variables.
func NewMatWriter(store providers.Uploader) Writer {
	return &matWriter{store: store}
}

func (w *matWriter) Write(ctx context.Context, name string, res *domain.ExtractionResult) (string, error) {
	if res == nil {
		return "", &WriteError{Artifact: name, Err: fmt.Errorf("nil extraction result")}
	}
	var buf bytes.Buffer
	err := matfile.Encode(&buf, []matfile.Variable{
		{Name: FieldTemplate, Matrix: res.Template},
		{Name: FieldMask, Matrix: res.Mask},
	})
	if err != nil {
		return "", &WriteError{Artifact: name, Err: err}
	}
	path, err := w.store.UploadBytes(ctx, name, ContentType, buf.Bytes())
	if err != nil {
		return "", &WriteError{Artifact: name, Err: err}
	}
	return path, nil
}
