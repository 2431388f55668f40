package image

import (
	"bytes"
	"image/jpeg"
	"testing"

	"go.viam.com/test"
)

func gradient(width, height int) (y, u, v []byte) {
	y = make([]byte, width*height)
	for i := range y {
		y[i] = byte(i)
	}
	n := (width / 2) * (height / 2)
	u, v = make([]byte, n), make([]byte, n)
	for i := 0; i < n; i++ {
		u[i], v[i] = byte(100+i), byte(200+i)
	}
	return
}

func TestFromI420(t *testing.T) {
	y, u, v := gradient(4, 2)
	img := FromI420(y, u, v, 4, 2)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 4)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 2)
	c := img.YCbCrAt(3, 1)
	test.That(t, c.Y, test.ShouldEqual, uint8(7))
	test.That(t, c.Cb, test.ShouldEqual, uint8(101))
	test.That(t, c.Cr, test.ShouldEqual, uint8(201))
}

func TestRotate(t *testing.T) {
	y, u, v := gradient(4, 2)
	img := FromI420(y, u, v, 4, 2)

	r := Rotate(img, 1)
	test.That(t, r.Bounds().Dx(), test.ShouldEqual, 2)
	test.That(t, r.Bounds().Dy(), test.ShouldEqual, 4)
	test.That(t, Rotate(img, 0), test.ShouldEqual, img)
	test.That(t, Rotate(img, 2).Bounds().Dx(), test.ShouldEqual, 4)
	test.That(t, Rotate(img, -1).Bounds().Dy(), test.ShouldEqual, 4)
}

func TestScaleAndEncode(t *testing.T) {
	y, u, v := gradient(64, 32)
	img := FromI420(y, u, v, 64, 32)

	small := Scale(img, 16)
	test.That(t, small.Bounds().Dx(), test.ShouldEqual, 16)
	test.That(t, small.Bounds().Dy(), test.ShouldEqual, 8)
	test.That(t, Scale(img, 0), test.ShouldEqual, img)

	data, err := EncodeJPEGBytes(small, 90)
	test.That(t, err, test.ShouldBeNil)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 16)
}
