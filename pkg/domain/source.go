package domain

import "path/filepath"

// SourceFile is one input image selected for enrollment.
type SourceFile struct {
	Path string `json:"path"`
}

func (s SourceFile) Basename() string { return filepath.Base(s.Path) }

func (s SourceFile) String() string { return s.Path }
