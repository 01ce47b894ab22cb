package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type GlimpseConfigIndex struct {
	BatchSize  int `yaml:"batch_size"`
	ScanReport int `yaml:"scan_report"`
}

type GlimpseConfigSearch struct {
	MaxResults int `yaml:"max_results"`
}

type GlimpseConfigCLIP struct {
	ModelsDir string `yaml:"models_dir"`
}

type GlimpseConfigGallery struct {
	Port          int  `yaml:"port"`
	OpenBrowser   bool `yaml:"open_browser"`
	ThumbnailSize int  `yaml:"thumbnail_size"`
}

type GlimpseConfig struct {
	Index   GlimpseConfigIndex   `yaml:"index"`
	Search  GlimpseConfigSearch  `yaml:"search"`
	CLIP    GlimpseConfigCLIP    `yaml:"clip"`
	Gallery GlimpseConfigGallery `yaml:"gallery"`
}

func NewDefaultConfig() GlimpseConfig {
	return GlimpseConfig{
		Index: GlimpseConfigIndex{
			BatchSize:  8,
			ScanReport: 2,
		},
		Search: GlimpseConfigSearch{
			MaxResults: 20,
		},
		CLIP: GlimpseConfigCLIP{
			ModelsDir: "onnx",
		},
		Gallery: GlimpseConfigGallery{
			Port:          0,
			OpenBrowser:   true,
			ThumbnailSize: 320,
		},
	}
}

func loadConfig() error {
	cfg := NewDefaultConfig()

	path, err := ConfigFilePath()
	if err != nil {
		return err
	}

	file, err := OpenFileForReading(path)
	if !os.IsNotExist(err) {
		if err != nil {
			return err
		}

		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&cfg)
		if err != nil {
			return err
		}
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}

	config = cfg

	return cfg.Store()
}

func (c *GlimpseConfig) Validate() error {
	if c.Index.BatchSize < 1 || c.Index.BatchSize > 256 {
		return fmt.Errorf("index.batch_size must be 1-256, got %d", c.Index.BatchSize)
	}

	if c.Index.ScanReport < 1 || c.Index.ScanReport > 60 {
		return fmt.Errorf("index.scan_report must be 1-60, got %d", c.Index.ScanReport)
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > 500 {
		return fmt.Errorf("search.max_results must be 1-500, got %d", c.Search.MaxResults)
	}

	if c.CLIP.ModelsDir == "" {
		return fmt.Errorf("clip.models_dir is empty")
	}

	if c.Gallery.Port < 0 || c.Gallery.Port > 65535 {
		return fmt.Errorf("gallery.port must be 0-65535, got %d", c.Gallery.Port)
	}

	if c.Gallery.ThumbnailSize < 64 || c.Gallery.ThumbnailSize > 1024 {
		return fmt.Errorf("gallery.thumbnail_size must be 64-1024, got %d", c.Gallery.ThumbnailSize)
	}

	return nil
}

func (c *GlimpseConfig) Store() error {
	def := NewDefaultConfig()

	comments := yaml.CommentMap{
		"$.index.batch_size":  {yaml.HeadComment(fmt.Sprintf(" how many images are embedded per batch (default: %v)", def.Index.BatchSize))},
		"$.index.scan_report": {yaml.HeadComment(fmt.Sprintf(" seconds between progress lines while embedding (default: %v)", def.Index.ScanReport))},

		"$.search.max_results": {yaml.HeadComment(fmt.Sprintf(" maximum results returned when --max is not given (default: %v)", def.Search.MaxResults))},

		"$.clip.models_dir": {yaml.HeadComment(fmt.Sprintf(" directory holding the clip onnx models and tokenizer (default: %v)", def.CLIP.ModelsDir))},

		"$.gallery.port":           {yaml.HeadComment(fmt.Sprintf(" port for the result gallery, 0 picks a free one (default: %v)", def.Gallery.Port))},
		"$.gallery.open_browser":   {yaml.HeadComment(fmt.Sprintf(" if the gallery should be opened in the browser (default: %v)", def.Gallery.OpenBrowser))},
		"$.gallery.thumbnail_size": {yaml.HeadComment(fmt.Sprintf(" longest side of gallery thumbnails in pixels (default: %v)", def.Gallery.ThumbnailSize))},
	}

	path, err := ConfigFilePath()
	if err != nil {
		return err
	}

	file, err := OpenFileForWriting(path)
	if err != nil {
		return err
	}

	defer file.Close()

	return yaml.NewEncoder(file, yaml.WithComment(comments)).Encode(c)
}
