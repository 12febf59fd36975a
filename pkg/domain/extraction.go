package domain

import "fmt"

// Matrix is a dense 2-D array stored row-major. Logical matrices hold 0/1
// values and are persisted as boolean arrays.
type Matrix struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Data    []float64 `json:"data"`
	Logical bool      `json:"logical,omitempty"`
}

func NewMatrix(rows, cols int, logical bool) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols), Logical: logical}
}

func (m Matrix) At(r, c int) float64 { return m.Data[r*m.Cols+c] }

func (m Matrix) Set(r, c int, v float64) { m.Data[r*m.Cols+c] = v }

func (m Matrix) Empty() bool { return m.Rows == 0 || m.Cols == 0 }

// Check reports whether the declared shape matches the backing slice.
func (m Matrix) Check() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("negative shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("shape %dx%d does not match %d elements", m.Rows, m.Cols, len(m.Data))
	}
	return nil
}

// Equal compares shape, class and values.
func (m Matrix) Equal(o Matrix) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols || m.Logical != o.Logical || len(m.Data) != len(o.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// CountNonZero returns the number of non-zero elements.
func (m Matrix) CountNonZero() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// ExtractionResult is the output of the feature extractor for one image.
// Score is carried along but never persisted.
type ExtractionResult struct {
	Template Matrix
	Mask     Matrix
	Score    float64
}
