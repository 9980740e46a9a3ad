package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/lox/aqiserve/internal/model"
)

func TestBuildLogger(t *testing.T) {
	tests := []struct {
		format, level string
		wantErr       bool
		debug         bool
	}{
		{"text", "info", false, false},
		{"json", "debug", false, true},
		{"JSON", "WARN", false, false},
		{"", "", false, false},
		{"xml", "info", true, false},
		{"text", "trace", true, false},
	}
	for _, tt := range tests {
		logger, err := buildLogger(tt.format, tt.level)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildLogger(%q, %q): expected error", tt.format, tt.level)
			}
			continue
		}
		if err != nil {
			t.Errorf("buildLogger(%q, %q): %v", tt.format, tt.level, err)
			continue
		}
		if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tt.debug {
			t.Errorf("buildLogger(%q, %q): debug enabled = %v, want %v", tt.format, tt.level, got, tt.debug)
		}
	}
}

func TestWriteInspect(t *testing.T) {
	b, err := model.Load("../../internal/model/testdata/aqi_small.json")
	if err != nil {
		t.Fatal(err)
	}

	var text bytes.Buffer
	if err := writeInspect(&text, b, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"reg:squarederror", "gbtree", "PM2.5_log", "station_Dongsi"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, text.String())
		}
	}

	var out bytes.Buffer
	if err := writeInspect(&out, b, true); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Objective    string
		Features     int
		FeatureNames []string
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if got.Objective != "reg:squarederror" {
		t.Errorf("Objective = %q", got.Objective)
	}
	if got.Features != 38 || len(got.FeatureNames) != 38 {
		t.Errorf("Features = %d, names = %d, want 38", got.Features, len(got.FeatureNames))
	}
}
