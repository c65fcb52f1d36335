// Package main provides the entry point for the Image Annotator viewer.
package main

import (
	"context"
	"os"

	fyneapp "fyne.io/fyne/v2/app"
	"go.uber.org/zap"

	"image-annotator/internal/app"
	"image-annotator/internal/config"
	"image-annotator/internal/sched"
	"image-annotator/internal/version"
	"image-annotator/ui/mainwindow"
)

const appID = "com.github.image-annotator"

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info("starting", zap.String("version", version.String()))

	prefsPath := config.DefaultPath()
	cfg, err := config.Load(prefsPath)
	if err != nil {
		logger.Warn("using default preferences", zap.String("path", prefsPath), zap.Error(err))
	}

	ws, err := app.NewWorkspace(cfg, logger)
	if err != nil {
		logger.Fatal("workspace", zap.Error(err))
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := sched.NewLoop(sched.WithLogger(logger.Named("loop")))
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event loop stopped", zap.Error(err))
		}
	}()

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(&app.AnnotatorTheme{})

	win := mainwindow.New(fyneApp, ws, loop, logger)
	win.OpenArgs(os.Args[1:])
	win.ShowAndRun()
}
