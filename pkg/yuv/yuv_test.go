package yuv

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

// nv21 builds a w x h semi-planar frame with padded rows. Luma at (x, y) is
// y*w+x, chroma u at (x, y) is 100+y*cw+x and v is 200+y*cw+x.
func nv21(w, h, pad int) (Plane, Plane, Plane) {
	stride := w + pad
	yData := make([]byte, stride*h)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			yData[r*stride+c] = byte(r*w + c)
		}
	}
	cw, ch := ChromaSize(w, h)
	vu := make([]byte, stride*ch)
	for r := 0; r < ch; r++ {
		for c := 0; c < cw; c++ {
			vu[r*stride+2*c] = byte(200 + r*cw + c)
			vu[r*stride+2*c+1] = byte(100 + r*cw + c)
		}
	}
	return Plane{Data: yData, RowStride: stride, PixelStride: 1},
		Plane{Data: vu[1:], RowStride: stride, PixelStride: 2},
		Plane{Data: vu, RowStride: stride, PixelStride: 2}
}

func TestPackSemiPlanar(t *testing.T) {
	var lib Library
	w, h := 4, 4
	y, u, v := nv21(w, h, 3)
	luma, chroma := PlaneLens(w, h)
	dy, du, dv := make([]byte, luma), make([]byte, chroma), make([]byte, chroma)

	err := lib.PackI420(y, u, v, w, h, dy, du, dv)
	test.That(t, err, test.ShouldBeNil)
	for i := range dy {
		test.That(t, dy[i], test.ShouldEqual, byte(i))
	}
	test.That(t, du, test.ShouldResemble, []byte{100, 101, 102, 103})
	test.That(t, dv, test.ShouldResemble, []byte{200, 201, 202, 203})
}

func TestPackPlanar(t *testing.T) {
	var lib Library
	w, h := 2, 2
	y := Plane{Data: []byte{1, 2, 0, 3, 4}, RowStride: 3, PixelStride: 1}
	u := Plane{Data: []byte{5}, RowStride: 1, PixelStride: 1}
	v := Plane{Data: []byte{6}, RowStride: 1, PixelStride: 1}
	dy, du, dv := make([]byte, 4), make([]byte, 1), make([]byte, 1)

	test.That(t, lib.PackI420(y, u, v, w, h, dy, du, dv), test.ShouldBeNil)
	test.That(t, dy, test.ShouldResemble, []byte{1, 2, 3, 4})
	test.That(t, du[0], test.ShouldEqual, byte(5))
	test.That(t, dv[0], test.ShouldEqual, byte(6))
}

func TestPackErrors(t *testing.T) {
	var lib Library
	y, u, v := nv21(4, 4, 0)

	err := lib.PackI420(y, u, v, 0, 4, nil, nil, nil)
	test.That(t, errors.Is(err, ErrInvalidSize), test.ShouldBeTrue)

	err = lib.PackI420(y, u, v, 4, 4, make([]byte, 3), make([]byte, 4), make([]byte, 4))
	test.That(t, errors.Is(err, ErrShortPlane), test.ShouldBeTrue)

	short := Plane{Data: y.Data[:5], RowStride: 4, PixelStride: 1}
	err = lib.PackI420(short, u, v, 4, 4, make([]byte, 16), make([]byte, 4), make([]byte, 4))
	test.That(t, errors.Is(err, ErrShortPlane), test.ShouldBeTrue)
}

func TestRotate(t *testing.T) {
	var lib Library
	// 4x2 luma:
	// 0 1 2 3
	// 4 5 6 7
	srcY := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	srcU := []byte{10, 11}
	srcV := []byte{20, 21}

	for _, tc := range []struct {
		name   string
		turns  int
		dw, dh int
		y      []byte
		u      []byte
	}{
		{"0", 0, 4, 2, []byte{0, 1, 2, 3, 4, 5, 6, 7}, []byte{10, 11}},
		{"90", 1, 2, 4, []byte{4, 0, 5, 1, 6, 2, 7, 3}, []byte{10, 11}},
		{"180", 2, 4, 2, []byte{7, 6, 5, 4, 3, 2, 1, 0}, []byte{11, 10}},
		{"270", 3, 2, 4, []byte{3, 7, 2, 6, 1, 5, 0, 4}, []byte{11, 10}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dy, du, dv := make([]byte, 8), make([]byte, 2), make([]byte, 2)
			err := lib.RotateI420(srcY, srcU, srcV, 4, 2, dy, du, dv, tc.dw, tc.dh, tc.turns)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dy, test.ShouldResemble, tc.y)
			test.That(t, du, test.ShouldResemble, tc.u)
		})
	}
}

func TestRotateDimensionMismatch(t *testing.T) {
	var lib Library
	buf := make([]byte, 8)
	err := lib.RotateI420(buf, buf, buf, 4, 2, buf, buf, buf, 4, 2, 1)
	test.That(t, errors.Is(err, ErrInvalidSize), test.ShouldBeTrue)
}
