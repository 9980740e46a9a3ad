package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lox/aqiserve/internal/api"
	"github.com/lox/aqiserve/internal/aqi"
	"github.com/lox/aqiserve/internal/artifact"
	"github.com/lox/aqiserve/internal/client"
	"github.com/lox/aqiserve/internal/features"
	"github.com/lox/aqiserve/internal/metrics"
	"github.com/lox/aqiserve/internal/model"
)

type ServeCmd struct {
	Addr              string `default:":8000" env:"AQI_ADDR" help:"HTTP listen address."`
	Model             string `default:"models/xgboost_model.json" env:"AQI_MODEL_PATH" help:"XGBoost JSON model artifact."`
	LegacyErrorStatus bool   `env:"AQI_LEGACY_ERROR_STATUS" help:"Answer failed predictions with HTTP 200 and an error body."`
}

func (c *ServeCmd) Run(g *Globals) error {
	booster, err := model.Load(c.Model)
	if err != nil {
		return err
	}
	info := booster.Info()
	g.Logger.Info("model_loaded",
		"path", info.Path,
		"xgboost_version", info.Version,
		"booster", info.Booster,
		"objective", info.Objective,
		"trees", info.UsedTrees,
		"features", info.Features,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := api.NewServer(booster, metrics.New(), api.Config{
		Addr:              c.Addr,
		LegacyErrorStatus: c.LegacyErrorStatus,
		Logger:            g.Logger,
	})
	return server.Run(ctx)
}

type PredictCmd struct {
	URL     string        `default:"http://localhost:8000" env:"AQI_URL" help:"Base URL of the prediction service."`
	Example bool          `help:"Send the built-in reference reading."`
	Station string        `help:"Set the station one-hot indicators to this station."`
	Timeout time.Duration `default:"30s" help:"Give up retrying after this long."`
	File    string        `arg:"" optional:"" help:"Feature vector JSON file, '-' for stdin."`
}

func (c *PredictCmd) Run(g *Globals) error {
	v, err := c.vector()
	if err != nil {
		return err
	}
	if c.Station != "" {
		if !slices.Contains(features.Stations, c.Station) {
			return fmt.Errorf("unknown station %q (known: %s)", c.Station, strings.Join(features.Stations, ", "))
		}
		features.SetStation(v, c.Station)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cl := client.New(c.URL)
	cl.MaxElapsedTime = c.Timeout
	value, err := cl.Predict(ctx, v)
	if err != nil {
		return err
	}
	g.Logger.Debug("prediction_received", "url", c.URL, "aqi", value)
	fmt.Printf("AQI %.2f (%s)\n", value, aqi.Classify(value))
	return nil
}

func (c *PredictCmd) vector() (features.Vector, error) {
	switch {
	case c.Example:
		return features.Example(), nil
	case c.File == "-":
		return features.Decode(os.Stdin)
	case c.File != "":
		f, err := os.Open(c.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return features.Decode(f)
	default:
		return nil, fmt.Errorf("provide a feature file, '-' for stdin, or --example")
	}
}

type FetchModelCmd struct {
	FTPAddr     string `name:"ftp-addr" required:"" env:"AQI_FTP_ADDR" help:"FTP server host:port."`
	FTPUser     string `name:"ftp-user" env:"AQI_FTP_USER" help:"FTP user (anonymous when empty)."`
	FTPPassword string `name:"ftp-password" env:"AQI_FTP_PASSWORD" help:"FTP password."`
	RemotePath  string `required:"" env:"AQI_FTP_PATH" help:"Path of the artifact on the server."`
	Dest        string `default:"models/xgboost_model.json" env:"AQI_MODEL_PATH" help:"Where to install the artifact."`
	SHA256      string `name:"sha256" help:"Expected SHA-256 of the artifact."`
}

func (c *FetchModelCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := artifact.FTPSource{
		Addr:     c.FTPAddr,
		User:     c.FTPUser,
		Password: c.FTPPassword,
		Path:     c.RemotePath,
	}
	staged := c.Dest + ".partial"
	defer os.Remove(staged)

	n, err := src.Fetch(ctx, staged, c.SHA256)
	if err != nil {
		return fmt.Errorf("fetch model: %w", err)
	}
	booster, err := model.Load(staged)
	if err != nil {
		return fmt.Errorf("verify model: %w", err)
	}
	if err := os.Rename(staged, c.Dest); err != nil {
		return fmt.Errorf("install model: %w", err)
	}

	info := booster.Info()
	g.Logger.Info("model_fetched",
		"dest", c.Dest,
		"bytes", n,
		"objective", info.Objective,
		"trees", info.Trees,
		"features", info.Features,
	)
	return nil
}

type InspectCmd struct {
	JSON  bool   `help:"Print as JSON."`
	Model string `arg:"" optional:"" default:"models/xgboost_model.json" help:"Model artifact to describe."`
}

func (c *InspectCmd) Run(g *Globals) error {
	booster, err := model.Load(c.Model)
	if err != nil {
		return err
	}
	return writeInspect(os.Stdout, booster, c.JSON)
}

func writeInspect(w io.Writer, b *model.Booster, asJSON bool) error {
	info := b.Info()
	names := b.Schema().Names()

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			model.Info
			FeatureNames []string
		}{info, names})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", info.Path)
	fmt.Fprintf(tw, "xgboost\t%s\n", info.Version)
	fmt.Fprintf(tw, "booster\t%s\n", info.Booster)
	fmt.Fprintf(tw, "objective\t%s\n", info.Objective)
	fmt.Fprintf(tw, "base score\t%g\n", info.BaseScore)
	fmt.Fprintf(tw, "trees\t%d of %d\n", info.UsedTrees, info.Trees)
	fmt.Fprintf(tw, "features\t%d\n", info.Features)
	for i, name := range names {
		fmt.Fprintf(tw, "  %d\t%s\n", i, name)
	}
	return tw.Flush()
}
