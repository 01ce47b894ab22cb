package main

import (
	"database/sql"
	"os"

	"github.com/coalaura/logger"
)

var (
	config   GlimpseConfig
	registry *sql.DB
	clip     *CLIP

	log = logger.New()
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Warnf("%v\n", err)

		os.Exit(1)
	}
}
