// Package matfile reads and writes MATLAB Level 5 MAT-files holding 2-D
// numeric and logical arrays.
package matfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

const (
	headerLen   = 128
	headerText  = 116
	version     = 0x0100
	logicalFlag = 0x02
	complexFlag = 0x08
	creator     = "irisenroll"
)

// data types
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// array classes
const (
	mxDOUBLE = 6
	mxSINGLE = 7
	mxINT8   = 8
	mxUINT8  = 9
	mxINT16  = 10
	mxUINT16 = 11
	mxINT32  = 12
	mxUINT32 = 13
	mxINT64  = 14
	mxUINT64 = 15
)

var (
	ErrBadHeader   = errors.New("matfile: not a Level 5 MAT-file")
	ErrUnsupported = errors.New("matfile: unsupported array")
)

// Variable is a named array stored in a MAT-file.
type Variable struct {
	Name   string
	Matrix domain.Matrix
}

// Encode writes vars as an uncompressed little-endian MAT-file. The header
// carries no timestamp, so identical inputs produce identical bytes.
func Encode(w io.Writer, vars []Variable) error {
	var buf bytes.Buffer
	buf.Grow(headerLen)
	writeHeader(&buf)
	for _, v := range vars {
		if err := writeVariable(&buf, v); err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeHeader(buf *bytes.Buffer) {
	text := fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: %s, Created by: %s", runtime.GOOS, creator)
	hdr := make([]byte, headerLen)
	for i := 0; i < headerText; i++ {
		hdr[i] = ' '
	}
	copy(hdr[:headerText], text)
	binary.LittleEndian.PutUint16(hdr[124:], version)
	hdr[126] = 'I'
	hdr[127] = 'M'
	buf.Write(hdr)
}

func writeVariable(buf *bytes.Buffer, v Variable) error {
	m := v.Matrix
	if err := m.Check(); err != nil {
		return fmt.Errorf("matfile: variable %q: %w", v.Name, err)
	}
	if v.Name == "" {
		return fmt.Errorf("matfile: variable name is empty")
	}

	var body bytes.Buffer
	class, flags := uint32(mxDOUBLE), uint32(0)
	if m.Logical {
		class, flags = mxUINT8, logicalFlag
	}
	writeElement(&body, miUINT32, le32(class|flags<<8, 0))
	writeElement(&body, miINT32, le32(uint32(int32(m.Rows)), uint32(int32(m.Cols))))
	writeElement(&body, miINT8, []byte(v.Name))

	n := m.Rows * m.Cols
	if m.Logical {
		data := make([]byte, n)
		for c := 0; c < m.Cols; c++ {
			for r := 0; r < m.Rows; r++ {
				if m.At(r, c) != 0 {
					data[c*m.Rows+r] = 1
				}
			}
		}
		writeElement(&body, miUINT8, data)
	} else {
		data := make([]byte, 8*n)
		for c := 0; c < m.Cols; c++ {
			for r := 0; r < m.Rows; r++ {
				binary.LittleEndian.PutUint64(data[8*(c*m.Rows+r):], math.Float64bits(m.At(r, c)))
			}
		}
		writeElement(&body, miDOUBLE, data)
	}

	writeTag(buf, miMATRIX, uint32(body.Len()))
	buf.Write(body.Bytes())
	return nil
}

func writeTag(buf *bytes.Buffer, typ, size uint32) {
	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[0:], typ)
	binary.LittleEndian.PutUint32(tag[4:], size)
	buf.Write(tag[:])
}

func writeElement(buf *bytes.Buffer, typ uint32, data []byte) {
	writeTag(buf, typ, uint32(len(data)))
	buf.Write(data)
	if pad := padding(len(data)); pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

func padding(n int) int { return (8 - n%8) % 8 }

func le32(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}
