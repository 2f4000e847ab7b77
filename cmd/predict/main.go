package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/Brownie44l1/leaf-api/internal/batch"
	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/schollz/progressbar/v3"
	ort "github.com/yalue/onnxruntime_go"
)

func main() {
	var envFile string
	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-env file] <image-or-dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadEnvFile(envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	slog.SetDefault(cfg.Logger())

	images, err := batch.ListImages(flag.Arg(0))
	if err != nil {
		log.Fatalf("could not list images: %v", err)
	}
	if len(images) == 0 {
		log.Fatalf("no .jpg, .jpeg or .png files in %s", flag.Arg(0))
	}

	root, err := config.ProjectRoot()
	if err != nil {
		log.Fatalf("%v", err)
	}
	modelPath, metadataPath := cfg.ModelPaths(root)

	if cfg.OnnxRuntimeDylib != "" {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	}
	modelServer, err := model.NewServer(modelPath, metadataPath)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("⏳ predicting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	opts := modelServer.Metadata.PreprocessOptions()
	opts.MaxPixels = cfg.MaxImagePixels

	results := batch.Run(modelServer, opts, images, cfg.Workers, func() { _ = bar.Add(1) })

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		fmt.Println(res)
	}

	if failed > 0 {
		modelServer.Close()
		log.Fatalf("%d of %d images failed", failed, len(results))
	}
}
