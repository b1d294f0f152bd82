package main

import (
	"context"
	"encoding/json"
	"flag"
	"image"
	"log"
	"os"
	"strconv"
	"time"
	"visdiff/internal/artifact"
	diffimage "visdiff/internal/diff/image"
	"visdiff/internal/imaging"

	"github.com/joho/godotenv"
)

type DiffOutput struct {
	Path           string  `json:"path"`
	DiffPixelCount int     `json:"diffPixelCount"`
	DiffAmount     float64 `json:"diffAmount"`
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func main() {
	_ = godotenv.Load()

	var storageBackend string
	var directory string
	var format string
	var threshold float64
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Artifact store backend (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.StringVar(&format, "format", envOrDefaultValue("FORMAT", "pixel"), "Diff format (pixel or rectangle)")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", diffimage.DefaultThreshold), "Comparison sensitivity in [0, 1]; lower flags smaller differences")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("usage: diff [flags] <baseline-file> <target-file>")
	}

	baselinePath := args[0]
	targetPath := args[1]

	ctx := context.Background()

	store, err := newStore(ctx, storageBackend, directory)
	if err != nil {
		log.Fatalf("Failed to create artifact store: %v", err)
	}

	baselineImage, err := loadImage(baselinePath)
	if err != nil {
		log.Fatalf("Failed to load baseline image: %v", err)
	}

	targetImage, err := loadImage(targetPath)
	if err != nil {
		log.Fatalf("Failed to load target image: %v", err)
	}

	var differ diffimage.Differ
	switch format {
	case "pixel":
		differ, err = diffimage.NewPixelDiff(threshold)
	case "rectangle":
		differ, err = diffimage.NewRectangleDiff(threshold)
	default:
		log.Fatalf("Unknown diff format: %s", format)
	}
	if err != nil {
		log.Fatalf("Failed to create differ: %v", err)
	}

	baselineCanvas, targetCanvas := diffimage.Normalize(baselineImage, targetImage)

	diffResult, err := differ.Calculate(baselineCanvas, targetCanvas)
	if err != nil {
		log.Fatalf("Failed to calculate diff: %v", err)
	}

	encoder := imaging.NewPNGEncoder()
	diffData, err := encoder.Encode(diffResult.Image)
	if err != nil {
		log.Fatalf("Failed to encode diff image: %v", err)
	}

	key := artifact.DiffKey(baselinePath, targetPath, encoder.Ext(), time.Now())
	diffPath, err := store.Put(ctx, key, diffData)
	if err != nil {
		log.Fatalf("Failed to store diff image: %v", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(DiffOutput{
		Path:           diffPath,
		DiffPixelCount: diffResult.DiffPixelCount,
		DiffAmount:     diffResult.DiffAmount,
	}); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	log.Printf("%d pixels differ, diff image written to %s", diffResult.DiffPixelCount, diffPath)
}

func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return imaging.Decode(data)
}

func newStore(ctx context.Context, backend string, directory string) (artifact.Store, error) {
	switch backend {
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket: os.Getenv("S3_BUCKET"),
		})
	default:
		return artifact.NewFileStore(ctx, artifact.FileConfig{
			Directory: directory,
		})
	}
}
