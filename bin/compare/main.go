package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	"visdiff/internal/artifact"
	"visdiff/internal/capture"
	diffimage "visdiff/internal/diff/image"
	"visdiff/internal/imaging"
	"visdiff/internal/retry"

	"github.com/joho/godotenv"
	"github.com/playwright-community/playwright-go"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type CompareOutput struct {
	BaselinePath   string  `json:"baselinePath"`
	TargetPath     string  `json:"targetPath"`
	DiffPath       string  `json:"diffPath"`
	DiffPixelCount int     `json:"diffPixelCount"`
	DiffAmount     float64 `json:"diffAmount"`
}

type Comparer struct {
	Capturer       capture.Capturer
	Store          artifact.Store
	Differ         diffimage.Differ
	CaptureOptions capture.CaptureOptions
	CaptureRetries uint
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

	var screenshotFormat string
	var chromeDevtoolsProtocolURL string
	var diffFormat string
	var threshold float64
	var maskSelectors string
	var delay time.Duration
	var storageBackend string
	var directory string
	var callbackURL string
	var captureRetries uint
	var schedule string
	flag.StringVar(&screenshotFormat, "screenshot-format", envOrDefaultValue("SCREENSHOT_FORMAT", "png"), "Screenshot format (png or jpeg)")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.StringVar(&diffFormat, "format", envOrDefaultValue("FORMAT", "pixel"), "Diff format (pixel or rectangle)")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", diffimage.DefaultThreshold), "Comparison sensitivity in [0, 1]; lower flags smaller differences")
	flag.StringVar(&maskSelectors, "mask-selectors", envOrDefaultValue("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.DurationVar(&delay, "delay", envOrDefaultValue("DELAY", 3*time.Second), "Settle delay after network idle before capturing")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Artifact store backend (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.UintVar(&captureRetries, "capture-retries", envOrDefaultValue("CAPTURE_RETRIES", uint(3)), "How many times a failed capture is retried with exponential backoff")
	flag.StringVar(&schedule, "schedule", envOrDefaultValue("SCHEDULE", ""), "Cron schedule (5-field) to repeat the comparison; empty runs once")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: compare [flags] <baseline-url> <target-url>")
		os.Exit(1)
	}

	baseline := args[0]
	target := args[1]

	ctx := context.Background()

	config := capture.DefaultPlaywrightConfig()
	if screenshotFormat != "" {
		config.Format = screenshotFormat
	}
	if delay > 0 {
		config.Delay = delay
	}
	if chromeDevtoolsProtocolURL != "" {
		config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	}

	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		log.Fatalf("failed to install playwright browsers: %v", err)
	}

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("failed to initialize capturer: %v", err)
	}

	var store artifact.Store
	switch storageBackend {
	case "file":
		store, err = artifact.NewFileStore(ctx, artifact.FileConfig{
			Directory: directory,
		})
		if err != nil {
			log.Fatalf("failed to create file artifact store: %v", err)
		}
	case "s3":
		store, err = artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket: os.Getenv("S3_BUCKET"),
		})
		if err != nil {
			log.Fatalf("failed to create S3 artifact store: %v", err)
		}
	default:
		log.Fatalf("unknown storage backend: %s", storageBackend)
	}

	var differ diffimage.Differ
	switch diffFormat {
	case "pixel":
		differ, err = diffimage.NewPixelDiff(threshold)
	case "rectangle":
		differ, err = diffimage.NewRectangleDiff(threshold)
	default:
		log.Fatalf("unknown diff format: %s", diffFormat)
	}
	if err != nil {
		log.Fatalf("failed to create differ: %v", err)
	}

	captureOptions := capture.CaptureOptions{}
	if maskSelectors != "" {
		captureOptions.MaskSelectors = strings.Split(maskSelectors, ",")
		for i := range captureOptions.MaskSelectors {
			captureOptions.MaskSelectors[i] = strings.TrimSpace(captureOptions.MaskSelectors[i])
		}
	}

	comparer := &Comparer{
		Capturer:       capturer,
		Store:          store,
		Differ:         differ,
		CaptureOptions: captureOptions,
		CaptureRetries: captureRetries,
	}

	run := func() error {
		result, err := comparer.compare(ctx, baseline, target)
		if err != nil {
			return xerrors.Errorf("failed to compare %s and %s: %w", baseline, target, err)
		}

		j, err := json.Marshal(result)
		if err != nil {
			return xerrors.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(j))

		if callbackURL != "" {
			if err := callback(ctx, callbackURL, j); err != nil {
				return xerrors.Errorf("failed to send callback: %w", err)
			}
		}

		log.Printf("%d pixels differ, diff image written to %s", result.DiffPixelCount, result.DiffPath)
		return nil
	}

	if schedule == "" {
		if err := run(); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	if _, err := c.AddFunc(schedule, func() {
		// A failed scheduled run is logged; the next tick still fires.
		if err := run(); err != nil {
			log.Printf("%v", err)
		}
	}); err != nil {
		log.Fatalf("failed to parse schedule %q: %v", schedule, err)
	}
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
}

func (c *Comparer) compare(ctx context.Context, baseline string, target string) (*CompareOutput, error) {
	var baselineResult *capture.CaptureResult
	var targetResult *capture.CaptureResult

	// Step 1: Capture screenshots in parallel
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			result, err := c.captureWithRetry(ctx, baseline)
			if err != nil {
				return xerrors.Errorf("failed to capture baseline screenshot: %w", err)
			}
			baselineResult = result
			return nil
		})

		eg.Go(func() error {
			result, err := c.captureWithRetry(ctx, target)
			if err != nil {
				return xerrors.Errorf("failed to capture target screenshot: %w", err)
			}
			targetResult = result
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	// Step 2: Generate diff image
	diffData, diffResult, err := c.generateDiff(baselineResult.Screenshot, targetResult.Screenshot)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate diff: %w", err)
	}

	// Step 3: Upload all three artifacts in parallel
	output := &CompareOutput{
		DiffPixelCount: diffResult.DiffPixelCount,
		DiffAmount:     diffResult.DiffAmount,
	}
	{
		eg, ctx := errgroup.WithContext(ctx)
		now := time.Now()

		eg.Go(func() error {
			key := artifact.CaptureKey(baseline, baselineResult.Format, now)
			path, err := c.Store.Put(ctx, key, baselineResult.Screenshot)
			if err != nil {
				return xerrors.Errorf("failed to upload baseline screenshot: %w", err)
			}
			output.BaselinePath = path
			return nil
		})

		eg.Go(func() error {
			key := artifact.CaptureKey(target, targetResult.Format, now)
			path, err := c.Store.Put(ctx, key, targetResult.Screenshot)
			if err != nil {
				return xerrors.Errorf("failed to upload target screenshot: %w", err)
			}
			output.TargetPath = path
			return nil
		})

		eg.Go(func() error {
			key := artifact.DiffKey(baseline, target, "png", now)
			path, err := c.Store.Put(ctx, key, diffData)
			if err != nil {
				return xerrors.Errorf("failed to upload diff image: %w", err)
			}
			output.DiffPath = path
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return output, nil
}

// captureWithRetry re-attempts flaky page loads with exponential backoff.
// The comparison core never retries; only this capture step does.
func (c *Comparer) captureWithRetry(ctx context.Context, url string) (*capture.CaptureResult, error) {
	strategy := retry.NewExponentialBackOff(500*time.Millisecond, 10*time.Second, c.CaptureRetries, nil)

	var retryCount uint
	for {
		result, err := c.Capturer.Capture(ctx, url, c.CaptureOptions)
		if err == nil {
			return result, nil
		}

		sleep, exceeded := strategy.Sleep(retryCount)
		if exceeded {
			return nil, err
		}
		retryCount++

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Comparer) generateDiff(baselineData []byte, targetData []byte) ([]byte, *diffimage.DiffResult, error) {
	baselineImage, err := imaging.Decode(baselineData)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to decode baseline image: %w", err)
	}

	targetImage, err := imaging.Decode(targetData)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to decode target image: %w", err)
	}

	baselineCanvas, targetCanvas := diffimage.Normalize(baselineImage, targetImage)

	diffResult, err := c.Differ.Calculate(baselineCanvas, targetCanvas)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to calculate diff: %w", err)
	}

	// Diff artifacts are always lossless so marked pixels survive encoding.
	diffData, err := imaging.NewPNGEncoder().Encode(diffResult.Image)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to encode diff image: %w", err)
	}

	return diffData, diffResult, nil
}

func callback(ctx context.Context, callbackURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, "PATCH", callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 1 * time.Second, // retry.Transport does not have perTryTimeout
		Transport: &retry.Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, 3, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	return nil
}
