package imgrec

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/astrogo/fitsio"
	"golang.org/x/image/tiff"

	"github.com/nasa-jpl/goscan/scan"
)

// ContentType maps a format to its MIME type
func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "tiff":
		return "image/tiff"
	case "fits":
		return "image/fits"
	}
	return "application/octet-stream"
}

// Encode writes res to w as a png, tiff or fits file
func Encode(w io.Writer, format string, res *scan.Result) error {
	img, err := res.Image()
	if err != nil {
		return err
	}
	switch format {
	case "png":
		return png.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case "fits":
		return WriteFits(w, Cards(res), img)
	}
	return fmt.Errorf("%q: %w", format, ErrFormat)
}

// Cards is the FITS header metadata describing res
func Cards(res *scan.Result) []fitsio.Card {
	return []fitsio.Card{
		{Name: "DATE-OBS", Value: res.Time.UTC().Format(time.RFC3339), Comment: "time the page finished"},
		{Name: "SCANID", Value: res.ID.String(), Comment: "scan job"},
		{Name: "PAGE", Value: res.Page, Comment: "page within the job"},
		{Name: "FRAMEFMT", Value: res.Params.Format.String(), Comment: "device frame format"},
		{Name: "DEPTH", Value: res.Params.Depth, Comment: "bits per sample"},
		{Name: "PREVIEW", Value: res.Preview},
		{Name: "CRC32", Value: fmt.Sprintf("%08x", Checksum(res.Data)), Comment: "of the raw device data"},
	}
}

// WriteFits streams a fits file to w.  8 bit images are stored unsigned, 16
// bit images as offset int16 with BZERO; color images become a cube of three
// planes.
func WriteFits(w io.Writer, metadata []fitsio.Card, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	var (
		bitpix = 8
		planes = 1
		data   interface{}
	)
	switch im := img.(type) {
	case *image.Gray:
		buf := make([]byte, 0, width*height)
		for y := 0; y < height; y++ {
			buf = append(buf, im.Pix[y*im.Stride:y*im.Stride+width]...)
		}
		data = buf
	case *image.Gray16:
		bitpix = 16
		ints := make([]int16, 0, width*height)
		for y := 0; y < height; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < width; x++ {
				ints = append(ints, offset16(row[2*x:]))
			}
		}
		data = ints
	case *image.RGBA:
		planes = 3
		buf := make([]byte, 3*width*height)
		for y := 0; y < height; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < width; x++ {
				for c := 0; c < 3; c++ {
					buf[c*width*height+y*width+x] = row[4*x+c]
				}
			}
		}
		data = buf
	case *image.RGBA64:
		bitpix, planes = 16, 3
		ints := make([]int16, 3*width*height)
		for y := 0; y < height; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < width; x++ {
				for c := 0; c < 3; c++ {
					ints[c*width*height+y*width+x] = offset16(row[8*x+2*c:])
				}
			}
		}
		data = ints
	default:
		return fmt.Errorf("fits: %T: %w", img, ErrFormat)
	}
	if bitpix == 16 {
		metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if planes > 1 {
		dims = append(dims, planes)
	}
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return err
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}

// offset16 reads a big endian sample and shifts it into int16 range
func offset16(b []byte) int16 {
	return int16(int32(uint16(b[0])<<8|uint16(b[1])) - 32768)
}
