package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
)

type Globals struct {
	Logger *slog.Logger
}

type CLI struct {
	EnvFile   kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	LogFormat string                   `name:"log-format" default:"text" enum:"text,json,discard" env:"AQI_LOG_FORMAT" help:"Log format: text|json."`
	LogLevel  string                   `name:"log-level" default:"info" enum:"debug,info,warn,error" env:"AQI_LOG_LEVEL" help:"Minimum log level."`

	Serve      ServeCmd      `cmd:"" default:"withargs" help:"Serve the prediction API (default)."`
	Predict    PredictCmd    `cmd:"" help:"Send a feature vector to a running service."`
	FetchModel FetchModelCmd `cmd:"" help:"Download the model artifact over FTP and verify it loads."`
	Inspect    InspectCmd    `cmd:"" help:"Describe a model artifact."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aqiserve"),
		kong.Description("Air quality index prediction service."),
		kong.UsageOnError(),
	)

	logger, err := buildLogger(cli.LogFormat, cli.LogLevel)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(&Globals{Logger: logger})
	ctx.FatalIfErrorf(err)
}

func buildLogger(format, level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info", "":
		slogLevel = slog.LevelInfo
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "discard":
		return slog.New(slog.NewTextHandler(io.Discard, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
