package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// FromI420 copies contiguous I420 planes into a new image.YCbCr.
func FromI420(y, u, v []byte, width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	cw := width / 2
	for row := 0; row < height; row++ {
		copy(img.Y[row*img.YStride:row*img.YStride+width], y[row*width:(row+1)*width])
	}
	for row := 0; row < height/2; row++ {
		copy(img.Cb[row*img.CStride:row*img.CStride+cw], u[row*cw:(row+1)*cw])
		copy(img.Cr[row*img.CStride:row*img.CStride+cw], v[row*cw:(row+1)*cw])
	}
	return img
}

// Rotate turns img clockwise by quarter turns.
func Rotate(img image.Image, turns int) image.Image {
	// imaging rotates counter-clockwise
	switch ((turns % 4) + 4) % 4 {
	case 1:
		return imaging.Rotate270(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate90(img)
	}
	return img
}

// RotateDegrees turns img clockwise by an arbitrary angle, filling with black.
func RotateDegrees(img image.Image, deg float64) image.Image {
	return imaging.Rotate(img, -deg, color.Black)
}

// Scale shrinks img to at most maxWidth pixels wide, keeping the aspect ratio.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, max(h, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

func EncodeJPEGBytes(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(img, &buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
