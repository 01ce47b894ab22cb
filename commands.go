package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	flagSearchIn    string
	flagSearchMax   int
	flagSearchPrint bool
)

var rootCmd = &cobra.Command{
	Use:           "glimpse",
	Short:         "Semantic image search over local directories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := loadConfig()
		if err != nil {
			return err
		}

		return connectToRegistry()
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Build or update the embedding index for a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexCmd,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed images by text, or by example image via a file/http/https url",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearchCmd,
}

var listIndexCmd = &cobra.Command{
	Use:   "list-index",
	Short: "List every indexed directory",
	Args:  cobra.NoArgs,
	RunE:  runListIndexCmd,
}

var removeIndexCmd = &cobra.Command{
	Use:   "remove-index <dir>",
	Short: "Remove the persisted index of a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveIndexCmd,
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchIn, "in", ".", "directory to search in")
	searchCmd.Flags().IntVar(&flagSearchMax, "max", 0, "maximum number of results (default from config)")
	searchCmd.Flags().BoolVar(&flagSearchPrint, "print", false, "print results instead of opening the gallery")

	rootCmd.AddCommand(indexCmd, searchCmd, listIndexCmd, removeIndexCmd)
}

// newCLIPWorker loads the model and wraps it in its worker goroutine. The
// loaded model lands in the clip global so commands can close it on the way
// out.
func newCLIPWorker() (*Worker, error) {
	model, err := LoadCLIP()
	if err != nil {
		return nil, err
	}

	clip = model

	return NewWorker(model), nil
}

func runIndexCmd(cmd *cobra.Command, args []string) error {
	defer func() {
		clip.Close()
	}()

	index, err := RunIndex(args[0], newCLIPWorker)

	if index != nil {
		entry := IndexedRoot{
			Path:    index.Root,
			File:    IndexFileName(index.Root),
			Files:   index.Files(),
			Vectors: index.Vectors(),
		}

		if rerr := entry.Upsert(); rerr != nil {
			log.Warnf("Failed to update registry: %v\n", rerr)
		}
	}

	return err
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	defer func() {
		clip.Close()
	}()

	results, err := RunSearch(args[0], SearchOptions{
		In:  flagSearchIn,
		Max: flagSearchMax,
	}, newCLIPWorker)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		log.Info("No matches found.")

		return nil
	}

	if flagSearchPrint {
		for i, result := range results {
			log.Printf("%2d. %5.1f  %s\n", i+1, result.Score, result.Path)
		}

		return nil
	}

	return ShowGallery(args[0], results)
}

func runListIndexCmd(cmd *cobra.Command, args []string) error {
	roots, err := ListIndexedRoots()
	if err != nil {
		return err
	}

	if len(roots) == 0 {
		log.Info("No directories indexed yet.")

		return nil
	}

	for _, root := range roots {
		size := "missing"

		if path, err := IndexFilePath(root.Path); err == nil {
			if info, err := os.Stat(path); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
		}

		log.Printf("%s\n", root.Path)
		log.Printf("    %d images (%d embedded), %s, indexed %s\n", root.Files, root.Vectors, size, humanize.Time(time.Unix(root.IndexedAt, 0)))
	}

	return nil
}

func runRemoveIndexCmd(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	entry, err := FindIndexedRoot(root)
	if err != nil {
		return err
	}

	if entry == nil {
		return fmt.Errorf("%w: %s", ErrNotIndexed, root)
	}

	path, err := IndexFilePath(root)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	err = entry.Delete()
	if err != nil {
		return err
	}

	log.InfoF("Removed index for %s\n", root)

	return nil
}
