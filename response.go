package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func errorResponse(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{
		"error": message,
	})
}

func resultsResponse(c *gin.Context, query string, items []GalleryItem) {
	results := make([]gin.H, len(items))

	for i, item := range items {
		results[i] = gin.H{
			"path":  item.Path,
			"score": item.Score,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
	})
}
