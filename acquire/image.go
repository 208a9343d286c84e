package acquire

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/nasa-jpl/goscan/device"
)

// Image converts an assembled buffer to an image.  p may be the parameters
// of any frame of the scan; plane frames are taken as interleaved RGB.  A
// partial buffer yields the lines received so far.  16 bit samples are in
// host byte order.
func Image(p device.Parameters, data []byte) (image.Image, error) {
	if err := CheckFormat(p); err != nil {
		return nil, err
	}
	bpl := p.BytesPerLine
	rgb := p.Format == device.FrameRGB || p.Format.Plane()
	if p.Format.Plane() {
		bpl *= 3
	}
	if bpl <= 0 {
		return nil, fmt.Errorf("image: %d bytes per line", bpl)
	}
	lines := len(data) / bpl
	if p.Lines > 0 && lines > p.Lines {
		lines = p.Lines
	}
	w := p.PixelsPerLine
	if lines == 0 || w <= 0 {
		return nil, fmt.Errorf("image: no complete line in %d bytes", len(data))
	}
	rect := image.Rect(0, 0, w, lines)
	switch {
	case !rgb && p.Depth == 1:
		img := image.NewGray(rect)
		for y := 0; y < lines; y++ {
			row := data[y*bpl:]
			for x := 0; x < w && x/8 < bpl; x++ {
				// a set bit is black
				if row[x/8]&(0x80>>uint(x%8)) == 0 {
					img.Pix[y*img.Stride+x] = 0xff
				}
			}
		}
		return img, nil
	case !rgb && p.Depth == 8:
		img := image.NewGray(rect)
		for y := 0; y < lines; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], data[y*bpl:])
		}
		return img, nil
	case !rgb:
		img := image.NewGray16(rect)
		for y := 0; y < lines; y++ {
			for x := 0; x < w && 2*x+1 < bpl; x++ {
				v := binary.NativeEndian.Uint16(data[y*bpl+2*x:])
				img.SetGray16(x, y, color.Gray16{Y: v})
			}
		}
		return img, nil
	case p.Depth == 8:
		img := image.NewRGBA(rect)
		for y := 0; y < lines; y++ {
			for x := 0; x < w && 3*x+2 < bpl; x++ {
				i := y*bpl + 3*x
				j := y*img.Stride + 4*x
				img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = data[i], data[i+1], data[i+2], 0xff
			}
		}
		return img, nil
	default:
		img := image.NewRGBA64(rect)
		for y := 0; y < lines; y++ {
			for x := 0; x < w && 6*x+5 < bpl; x++ {
				i := y*bpl + 6*x
				img.SetRGBA64(x, y, color.RGBA64{
					R: binary.NativeEndian.Uint16(data[i:]),
					G: binary.NativeEndian.Uint16(data[i+2:]),
					B: binary.NativeEndian.Uint16(data[i+4:]),
					A: 0xffff,
				})
			}
		}
		return img, nil
	}
}
