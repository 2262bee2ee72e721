package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	imagefrompage "github.com/goliatone/go-imagefrompage"
	imagethumbs "github.com/goliatone/go-imagefrompage/components/thumbnails"
	"github.com/goliatone/go-imagefrompage/internal/config"
	"github.com/goliatone/go-imagefrompage/internal/session"
	"github.com/goliatone/go-imagefrompage/pkg/dom"
	"github.com/goliatone/go-imagefrompage/pkg/lifecycle"
	"github.com/goliatone/go-imagefrompage/pkg/picker"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	document := flag.String("document", "", "HTML document holding image-from-page fields")
	endpoint := flag.String("endpoint", "", "thumbnail endpoint (overrides config and local pages)")
	output := flag.String("output", "", "output file for the edited document (stdout if empty)")
	verbose := flag.Bool("verbose", false, "log debug messages")
	flag.Parse()

	if strings.TrimSpace(*document) == "" {
		log.Fatalf("missing -document")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	doc, err := readDocument(*document)
	if err != nil {
		log.Fatalf("Failed to read document: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := strings.TrimSpace(*endpoint)
	var (
		onEdited    session.EditedFunc
		localAssets bool
	)
	if target == "" && cfg.Endpoint == "" && cfg.HasPages() {
		component := imagethumbs.New(cfg.ComponentOptions()...)
		url, shutdown, err := serveLocal(component)
		if err != nil {
			log.Fatalf("Failed to start thumbnail endpoint: %v", err)
		}
		defer shutdown()
		logger.Info("serving thumbnails", slog.String("url", url), slog.Any("pages", cfg.PageIDs()))
		target = url
		onEdited = component.Invalidate
		localAssets = true
	}

	opts := append(cfg.PickerOptions(target), picker.WithLogger(logger), picker.WithContext(ctx))
	if localAssets && cfg.RendererConfig() == nil {
		opts = append(opts, picker.WithTheme(imagefrompage.ThemeAssets(assetsPath)))
	}
	mgr, err := lifecycle.New(doc, opts...)
	if err != nil {
		log.Fatalf("Failed to create widget manager: %v", err)
	}
	n, err := mgr.InitAll(ctx, nil)
	if err != nil {
		logger.Warn("some fields failed to initialize", slog.Any("error", err))
	}
	logger.Info("fields initialized", slog.Int("count", n))

	driver := session.NewSurveyDriver(os.Stdout)
	if err := session.New(doc, mgr, driver, session.WithEdited(onEdited)).Run(ctx); err != nil {
		log.Fatalf("Session failed: %v", err)
	}
	mgr.Wait()

	if err := writeDocument(ctx, driver, doc, *output); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}

func readDocument(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dom.Parse(f)
}

func writeDocument(ctx context.Context, driver session.PromptDriver, doc *dom.Document, path string) error {
	if path == "" {
		return doc.Render(os.Stdout)
	}
	if _, err := os.Stat(path); err == nil {
		ok, err := driver.Confirm(ctx, session.ConfirmConfig{
			Message: fmt.Sprintf("Overwrite %s?", path),
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Document written to %s\n", path)
	return nil
}

const assetsPath = "/imagefrompage/"

func serveLocal(component *imagethumbs.Component) (string, func(), error) {
	mux := http.NewServeMux()
	pattern, err := component.RegisterRoutes(mux, "/")
	if err != nil {
		return "", nil, err
	}
	mux.Handle(assetsPath, http.StripPrefix(assetsPath, http.FileServerFS(imagefrompage.AssetsFS())))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("thumbnail endpoint stopped: %v", err)
		}
	}()
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String() + pattern, shutdown, nil
}
