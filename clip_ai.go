//go:build ai

package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	clipDim       = 512
	clipMaxTokens = 77
	clipSOT       = 49406
	clipEOT       = 49407
)

// CLIP runs the visual and text encoders through onnxruntime. Both sessions
// reuse fixed single-item tensors, so batches are processed item by item
// under the lock while the process stays warm between batches.
type CLIP struct {
	tok *CLIPTokenizer

	visSess  *ort.AdvancedSession
	textSess *ort.AdvancedSession

	visIn   *ort.Tensor[float32] // [1,3,224,224]
	visOut  *ort.Tensor[float32] // [1,512]
	textIDs *ort.Tensor[int64]   // [1,77]
	textAtt *ort.Tensor[int64]   // [1,77]
	textOut *ort.Tensor[float32] // [1,512]

	mu sync.Mutex
}

// LoadCLIP initializes the onnxruntime environment from the configured model
// directory and loads both encoder sessions.
func LoadCLIP() (*CLIP, error) {
	root := config.CLIP.ModelsDir

	if !filepath.IsAbs(root) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}

		root = filepath.Join(cwd, root)
	}

	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("missing model directory %s, download the clip models first", root)
	}

	libDir, ortLib, modelsDir, err := resolveONNX(root)
	if err != nil {
		return nil, err
	}

	prependDynlibSearchPath(libDir)

	ort.SetSharedLibraryPath(ortLib)

	err = ort.InitializeEnvironment()
	if err != nil {
		return nil, err
	}

	clip, err := NewCLIP(modelsDir)
	if err != nil {
		ort.DestroyEnvironment()

		return nil, err
	}

	return clip, nil
}

func NewCLIP(modelsDir string) (*CLIP, error) {
	tok, err := NewCLIPTokenizer(filepath.Join(modelsDir, "clip_tokenizer"))
	if err != nil {
		return nil, err
	}

	var created []interface{ Destroy() error }

	fail := func(err error) (*CLIP, error) {
		for _, item := range created {
			item.Destroy()
		}

		return nil, err
	}

	visIn, err := ort.NewTensor(ort.NewShape(1, 3, 224, 224), make([]float32, 3*224*224))
	if err != nil {
		return fail(fmt.Errorf("create visual input: %w", err))
	}

	created = append(created, visIn)

	visOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, clipDim))
	if err != nil {
		return fail(fmt.Errorf("create visual output: %w", err))
	}

	created = append(created, visOut)

	textIDs, err := ort.NewTensor(ort.NewShape(1, clipMaxTokens), make([]int64, clipMaxTokens))
	if err != nil {
		return fail(fmt.Errorf("create text ids: %w", err))
	}

	created = append(created, textIDs)

	textAtt, err := ort.NewTensor(ort.NewShape(1, clipMaxTokens), make([]int64, clipMaxTokens))
	if err != nil {
		return fail(fmt.Errorf("create text attention: %w", err))
	}

	created = append(created, textAtt)

	textOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, clipDim))
	if err != nil {
		return fail(fmt.Errorf("create text output: %w", err))
	}

	created = append(created, textOut)

	visSess, err := ort.NewAdvancedSession(
		filepath.Join(modelsDir, "clip_visual.onnx"),
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{visIn},
		[]ort.ArbitraryTensor{visOut},
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("create visual session: %w", err))
	}

	created = append(created, visSess)

	textSess, err := ort.NewAdvancedSession(
		filepath.Join(modelsDir, "clip_text.onnx"),
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{textIDs, textAtt},
		[]ort.ArbitraryTensor{textOut},
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("create text session: %w", err))
	}

	return &CLIP{
		tok:      tok,
		visSess:  visSess,
		textSess: textSess,
		visIn:    visIn,
		visOut:   visOut,
		textIDs:  textIDs,
		textAtt:  textAtt,
		textOut:  textOut,
	}, nil
}

func (c *CLIP) Close() {
	if c == nil {
		return
	}

	c.visSess.Destroy()
	c.textSess.Destroy()
	c.visIn.Destroy()
	c.visOut.Destroy()
	c.textIDs.Destroy()
	c.textAtt.Destroy()
	c.textOut.Destroy()

	ort.DestroyEnvironment()
}

func (c *CLIP) EmbedImages(images []image.Image) ([]Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vectors := make([]Vector, len(images))

	for i, img := range images {
		copy(c.visIn.GetData(), preprocessImage(img))

		err := c.visSess.Run()
		if err != nil {
			return nil, err
		}

		out := make(Vector, clipDim)

		copy(out, c.visOut.GetData())

		vectors[i] = out
	}

	return vectors, nil
}

func (c *CLIP) EmbedTexts(texts []string) ([]Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vectors := make([]Vector, len(texts))

	for i, text := range texts {
		ids, att := c.tok.Encode(text)

		copy(c.textIDs.GetData(), ids)
		copy(c.textAtt.GetData(), att)

		err := c.textSess.Run()
		if err != nil {
			return nil, err
		}

		out := make(Vector, clipDim)

		copy(out, c.textOut.GetData())

		vectors[i] = out
	}

	return vectors, nil
}

func resolveONNX(root string) (string, string, string, error) {
	modelsDir := filepath.Join(root, "models")

	var libDir, ortLib string

	switch runtime.GOOS {
	case "windows":
		libDir = filepath.Join(root, "lib", "windows-amd64")
		ortLib = filepath.Join(libDir, "onnxruntime.dll")
	case "linux":
		libDir = filepath.Join(root, "lib", "linux-amd64")
		ortLib = filepath.Join(libDir, "libonnxruntime.so.1.24.1")
	case "darwin":
		libDir = filepath.Join(root, "lib", "darwin-arm64")
		ortLib = filepath.Join(libDir, "libonnxruntime.dylib")
	default:
		return "", "", "", fmt.Errorf("no onnxruntime library for %s", runtime.GOOS)
	}

	return libDir, ortLib, modelsDir, nil
}

func prependDynlibSearchPath(dir string) {
	switch runtime.GOOS {
	case "windows":
		prependEnv("PATH", dir, ";")
	case "linux":
		prependEnv("LD_LIBRARY_PATH", dir, ":")
	case "darwin":
		prependEnv("DYLD_LIBRARY_PATH", dir, ":")
	}
}

func prependEnv(name, dir, sep string) {
	cur := os.Getenv(name)
	if cur == "" {
		os.Setenv(name, dir)

		return
	}

	if strings.Contains(cur, dir) {
		return
	}

	os.Setenv(name, dir+sep+cur)
}
