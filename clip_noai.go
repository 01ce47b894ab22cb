//go:build !ai

package main

import "image"

// CLIP is a stub in builds without the onnxruntime backend. Every embedding
// request reports the ai build as disabled.
type CLIP struct{}

func LoadCLIP() (*CLIP, error) {
	return nil, ErrAIDisabled
}

func (c *CLIP) Close() {
}

func (c *CLIP) EmbedImages(images []image.Image) ([]Vector, error) {
	return nil, ErrAIDisabled
}

func (c *CLIP) EmbedTexts(texts []string) ([]Vector, error) {
	return nil, ErrAIDisabled
}
