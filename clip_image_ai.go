//go:build ai

package main

import (
	"image"

	"golang.org/x/image/draw"
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// preprocessImage resizes the shorter side to 224, center-crops to 224x224
// and normalizes the pixels into NCHW planes the visual encoder expects.
func preprocessImage(src image.Image) []float32 {
	bounds := src.Bounds()

	sw := bounds.Dx()
	sh := bounds.Dy()

	var rw, rh int

	if sw < sh {
		rw = 224
		rh = int(float64(sh) * (224.0 / float64(sw)))
	} else {
		rh = 224
		rw = int(float64(sw) * (224.0 / float64(sh)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, rw, rh))

	draw.CatmullRom.Scale(resized, resized.Bounds(), src, bounds, draw.Over, nil)

	offX := (rw - 224) / 2
	offY := (rh - 224) / 2

	out := make([]float32, 3*224*224)

	plane := 224 * 224

	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			pixel := resized.RGBAAt(x+offX, y+offY)

			i := y*224 + x

			out[i] = (float32(pixel.R)/255.0 - clipMean[0]) / clipStd[0]
			out[plane+i] = (float32(pixel.G)/255.0 - clipMean[1]) / clipStd[1]
			out[2*plane+i] = (float32(pixel.B)/255.0 - clipMean[2]) / clipStd[2]
		}
	}

	return out
}
