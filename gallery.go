package main

import (
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
)

type GalleryItem struct {
	Index int
	Name  string
	Path  string
	Score float64
}

const galleryTemplate = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>glimpse: {{.Query}}</title>
<style>
body { margin: 0; padding: 1.5rem; background: #111; color: #eee; font-family: sans-serif; }
h1 { font-size: 1.1rem; font-weight: normal; }
h1 b { color: #8fc7ff; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(240px, 1fr)); gap: 1rem; }
.card { background: #1b1b1b; border-radius: 6px; overflow: hidden; text-decoration: none; color: inherit; }
.card img { width: 100%; height: 200px; object-fit: cover; display: block; }
.card .meta { padding: 0.4rem 0.6rem; font-size: 0.8rem; display: flex; justify-content: space-between; gap: 0.5rem; }
.card .name { overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.card .score { color: #8fc7ff; }
</style>
</head>
<body>
<h1>{{len .Results}} results for <b>{{.Query}}</b></h1>
<div class="grid">
{{range .Results}}
<a class="card" href="/image/{{.Index}}" target="_blank" title="{{.Path}}">
<img src="/thumb/{{.Index}}" alt="{{.Name}}" loading="lazy">
<div class="meta"><span class="name">{{.Name}}</span><span class="score">{{printf "%.1f" .Score}}</span></div>
</a>
{{end}}
</div>
</body>
</html>
`

// ShowGallery serves the search results as a local web gallery and keeps
// serving until the process is interrupted. Thumbnails are rendered into the
// cache directory up front by a small worker pool.
func ShowGallery(query string, results []SearchResult) error {
	items := make([]GalleryItem, len(results))

	for i, result := range results {
		items[i] = GalleryItem{
			Index: i,
			Name:  filepath.Base(result.Path),
			Path:  result.Path,
			Score: result.Score,
		}
	}

	thumbs, err := renderThumbnails(results)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(log.Middleware())

	r.SetHTMLTemplate(template.Must(template.New("gallery").Parse(galleryTemplate)))

	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "gallery", gin.H{
			"Query":   query,
			"Results": items,
		})
	})

	r.GET("/results.json", func(c *gin.Context) {
		resultsResponse(c, query, items)
	})

	r.GET("/thumb/:index", func(c *gin.Context) {
		index, ok := galleryIndex(c, len(items))
		if !ok {
			return
		}

		c.File(thumbs[index])
	})

	r.GET("/image/:index", func(c *gin.Context) {
		index, ok := galleryIndex(c, len(items))
		if !ok {
			return
		}

		c.File(items[index].Path)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", config.Gallery.Port))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/", listener.Addr())

	log.InfoF("Gallery at %s (ctrl+c to quit)\n", url)

	if config.Gallery.OpenBrowser {
		openBrowser(url)
	}

	return http.Serve(listener, r)
}

func galleryIndex(c *gin.Context, count int) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))

	if err != nil || index < 0 || index >= count {
		errorResponse(c, http.StatusNotFound, "no such result")

		return 0, false
	}

	return index, true
}

func renderThumbnails(results []SearchResult) ([]string, error) {
	queue := NewQueue(runtime.NumCPU())

	thumbs := make([]string, len(results))

	for i, result := range results {
		path, err := ThumbFilePath(result.Path)
		if err != nil {
			return nil, err
		}

		thumbs[i] = path

		if thumbIsFresh(path, result.Path) {
			continue
		}

		queue.Work(result.Path, func() error {
			img, err := decodeImageFile(result.Path)
			if err != nil {
				return err
			}

			img = resizeImageToFit(img, config.Gallery.ThumbnailSize)

			_, err = saveImageAsWebP(img, path)

			return err
		})
	}

	queue.Wait()

	return thumbs, nil
}

func thumbIsFresh(thumb, source string) bool {
	ti, err := os.Stat(thumb)
	if err != nil {
		return false
	}

	si, err := os.Stat(source)
	if err != nil {
		return false
	}

	return !ti.ModTime().Before(si.ModTime())
}

func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	err := cmd.Start()
	if err != nil {
		log.Warnf("Failed to open browser: %v\n", err)
	}
}
