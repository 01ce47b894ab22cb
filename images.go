package main

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/gen2brain/heic"
	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

func decodeImageFile(path string) (image.Image, error) {
	file, err := OpenFileForReading(path)
	if err != nil {
		return nil, err
	}

	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	return img, nil
}

func decodeImageBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return img, nil
}

// resizeImageToFit scales img down so its longer side is at most size,
// keeping the aspect ratio. Images already small enough pass through.
func resizeImageToFit(img image.Image, size int) image.Image {
	bounds := img.Bounds()

	width := bounds.Dx()
	height := bounds.Dy()

	if width <= size && height <= size {
		return img
	}

	if width > height {
		height = height * size / width
		width = size
	} else {
		width = width * size / height
		height = size
	}

	if width < 1 {
		width = 1
	}

	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}

func saveImageAsWebP(img image.Image, path string) (int64, error) {
	wr, err := OpenCountWriter(path)
	if err != nil {
		return 0, err
	}

	defer wr.Close()

	err = webp.Encode(wr, img, getWebPOptions())

	return wr.N, err
}

func getWebPOptions() webp.Options {
	var opts webp.Options

	opts.Method = webp.DefaultMethod
	opts.Quality = 82

	return opts
}
