package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

// maxInflated caps the size of one decompressed element.
var maxInflated int64 = 256 << 20

// Decode reads every variable from a Level 5 MAT-file. Only real 2-D numeric
// and logical arrays are supported; compressed elements are inflated.
func Decode(r io.Reader) ([]Variable, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("matfile: read: %w", err)
	}
	if len(raw) < headerLen {
		return nil, ErrBadHeader
	}
	var order binary.ByteOrder
	switch string(raw[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, ErrBadHeader
	}
	if order.Uint16(raw[124:126]) != version {
		return nil, ErrBadHeader
	}
	d := &decoder{order: order}
	return d.elements(raw[headerLen:])
}

type decoder struct {
	order binary.ByteOrder
}

func (d *decoder) elements(b []byte) ([]Variable, error) {
	var vars []Variable
	for len(b) > 0 {
		typ, data, rest, err := d.next(b)
		if err != nil {
			return nil, err
		}
		b = rest
		switch typ {
		case miMATRIX:
			v, err := d.matrix(data)
			if err != nil {
				return nil, err
			}
			vars = append(vars, v)
		case miCOMPRESSED:
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("matfile: inflate: %w", err)
			}
			inflated, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
			_ = zr.Close()
			if err != nil {
				return nil, fmt.Errorf("matfile: inflate: %w", err)
			}
			if int64(len(inflated)) > maxInflated {
				return nil, fmt.Errorf("%w: compressed element inflates past %d bytes", ErrUnsupported, maxInflated)
			}
			inner, err := d.elements(inflated)
			if err != nil {
				return nil, err
			}
			vars = append(vars, inner...)
		default:
			return nil, fmt.Errorf("%w: top-level element type %d", ErrUnsupported, typ)
		}
	}
	return vars, nil
}

// next splits one tagged element off b, handling the small element format.
func (d *decoder) next(b []byte) (typ uint32, data, rest []byte, err error) {
	if len(b) < 8 {
		return 0, nil, nil, fmt.Errorf("matfile: truncated tag")
	}
	first := d.order.Uint32(b[0:4])
	if first>>16 != 0 {
		size := int(first >> 16)
		if size > 4 {
			return 0, nil, nil, fmt.Errorf("matfile: bad small element size %d", size)
		}
		return first & 0xffff, b[4 : 4+size], b[8:], nil
	}
	size := int(d.order.Uint32(b[4:8]))
	end := 8 + size
	if end > len(b) {
		return 0, nil, nil, fmt.Errorf("matfile: element overruns file (%d > %d)", end, len(b))
	}
	next := end
	if first != miCOMPRESSED {
		next += padding(size)
	}
	if next > len(b) {
		next = len(b)
	}
	return first, b[8:end], b[next:], nil
}

func (d *decoder) matrix(b []byte) (Variable, error) {
	typ, flagsData, b, err := d.next(b)
	if err != nil || typ != miUINT32 || len(flagsData) < 4 {
		return Variable{}, fmt.Errorf("matfile: bad array flags")
	}
	word := d.order.Uint32(flagsData)
	class := word & 0xff
	flags := (word >> 8) & 0xff
	if flags&complexFlag != 0 {
		return Variable{}, fmt.Errorf("%w: complex arrays", ErrUnsupported)
	}

	typ, dimsData, b, err := d.next(b)
	if err != nil || typ != miINT32 {
		return Variable{}, fmt.Errorf("matfile: bad dimensions")
	}
	if len(dimsData) != 8 {
		return Variable{}, fmt.Errorf("%w: %d dimensions", ErrUnsupported, len(dimsData)/4)
	}
	rows := int(int32(d.order.Uint32(dimsData[0:4])))
	cols := int(int32(d.order.Uint32(dimsData[4:8])))
	if rows < 0 || cols < 0 {
		return Variable{}, fmt.Errorf("%w: negative shape %dx%d", ErrUnsupported, rows, cols)
	}

	typ, nameData, b, err := d.next(b)
	if err != nil || (typ != miINT8 && typ != miUINT8) {
		return Variable{}, fmt.Errorf("matfile: bad array name")
	}
	name := string(nameData)

	if class < mxDOUBLE || class > mxUINT64 {
		return Variable{}, fmt.Errorf("%w: %q has class %d", ErrUnsupported, name, class)
	}

	typ, realPart, _, err := d.next(b)
	if err != nil {
		return Variable{}, fmt.Errorf("matfile: %q real part: %w", name, err)
	}
	vals, err := d.numbers(typ, realPart)
	if err != nil {
		return Variable{}, fmt.Errorf("matfile: %q: %w", name, err)
	}
	if len(vals) != rows*cols {
		return Variable{}, fmt.Errorf("matfile: %q has %d values for shape %dx%d", name, len(vals), rows, cols)
	}

	m := domain.NewMatrix(rows, cols, flags&logicalFlag != 0)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			m.Set(r, c, vals[c*rows+r])
		}
	}
	return Variable{Name: name, Matrix: m}, nil
}

func (d *decoder) numbers(typ uint32, b []byte) ([]float64, error) {
	var size int
	switch typ {
	case miINT8, miUINT8:
		size = 1
	case miINT16, miUINT16:
		size = 2
	case miINT32, miUINT32, miSINGLE:
		size = 4
	case miDOUBLE, miINT64, miUINT64:
		size = 8
	default:
		return nil, fmt.Errorf("%w: data type %d", ErrUnsupported, typ)
	}
	n := len(b) / size
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		p := b[i*size:]
		switch typ {
		case miINT8:
			out[i] = float64(int8(p[0]))
		case miUINT8:
			out[i] = float64(p[0])
		case miINT16:
			out[i] = float64(int16(d.order.Uint16(p)))
		case miUINT16:
			out[i] = float64(d.order.Uint16(p))
		case miINT32:
			out[i] = float64(int32(d.order.Uint32(p)))
		case miUINT32:
			out[i] = float64(d.order.Uint32(p))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(d.order.Uint32(p)))
		case miDOUBLE:
			out[i] = math.Float64frombits(d.order.Uint64(p))
		case miINT64:
			out[i] = float64(int64(d.order.Uint64(p)))
		case miUINT64:
			out[i] = float64(d.order.Uint64(p))
		}
	}
	return out, nil
}

// Lookup returns the variable with the given name.
func Lookup(vars []Variable, name string) (domain.Matrix, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v.Matrix, true
		}
	}
	return domain.Matrix{}, false
}
