package core

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float32{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	if m.Shape() != [2]int{2, 3} {
		t.Errorf("Shape() = %v; want [2 3]", m.Shape())
	}
	if got := m.Row(1); got[0] != 4 || got[2] != 6 {
		t.Errorf("Row(1) = %v; want [4 5 6]", got)
	}

	if _, err := FromRows([][]float32{{1, 2}, {3}}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for ragged rows, got %v", err)
	}
}

func TestMatrixBytesRoundTrip(t *testing.T) {
	for _, dtype := range []DType{F32, F64, U8, I32} {
		m, err := NewMatrix(dtype, 2, 2)
		if err != nil {
			t.Fatalf("NewMatrix(%s) failed: %v", dtype, err)
		}
		switch dtype {
		case F32:
			copy(m.F32, []float32{0, 1.5, -2.25, 3.75})
		case F64:
			copy(m.F64, []float64{0, 1.5, -2.25, 3.75})
		case U8:
			copy(m.U8, []uint8{0, 1, 128, 255})
		case I32:
			copy(m.I32, []int32{0, -1, 1 << 20, -(1 << 30)})
		}

		got, err := MatrixFromBytes(dtype, 2, 2, m.Bytes())
		if err != nil {
			t.Fatalf("MatrixFromBytes(%s) failed: %v", dtype, err)
		}
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				if got.Float64(i, j) != m.Float64(i, j) {
					t.Errorf("%s element (%d, %d) = %v; want %v", dtype, i, j, got.Float64(i, j), m.Float64(i, j))
				}
			}
		}
	}
}

func TestMatrixFromBytesWrongLength(t *testing.T) {
	if _, err := MatrixFromBytes(F32, 2, 2, make([]byte, 15)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
	if _, err := NewMatrix(DType("BF16"), 1, 1); !errors.Is(err, ErrDType) {
		t.Errorf("expected ErrDType, got %v", err)
	}
}

func TestToF32(t *testing.T) {
	m, _ := NewMatrix(U8, 1, 3)
	copy(m.U8, []uint8{1, 2, 255})
	f := m.ToF32()
	if f.DType != F32 || f.F32[2] != 255 {
		t.Errorf("ToF32() = %+v", f)
	}
}
