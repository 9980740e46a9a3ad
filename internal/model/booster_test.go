package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lox/aqiserve/internal/features"
)

const testModel = "testdata/aqi_small.json"

func loadTestModel(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(testModel)
	if err != nil {
		t.Fatalf("read test model: %v", err)
	}
	return data
}

func patch(t *testing.T, data []byte, path string, value any) []byte {
	t.Helper()
	out, err := sjson.SetBytes(data, path, value)
	if err != nil {
		t.Fatalf("patch %s: %v", path, err)
	}
	return out
}

func predictVector(t *testing.T, b *Booster, v features.Vector) float64 {
	t.Helper()
	row, err := b.Schema().Frame(v)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	got, err := b.Predict(row)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return got
}

func TestLoad(t *testing.T) {
	b, err := Load(testModel)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	info := b.Info()
	if info.Version != "2.0.3" {
		t.Errorf("Version = %q, want 2.0.3", info.Version)
	}
	if info.Objective != "reg:squarederror" {
		t.Errorf("Objective = %q", info.Objective)
	}
	if info.BaseScore != 50 {
		t.Errorf("BaseScore = %v, want 50", info.BaseScore)
	}
	if info.Trees != 2 || info.UsedTrees != 2 {
		t.Errorf("Trees = %d/%d, want 2/2", info.UsedTrees, info.Trees)
	}
	if info.Features != 38 {
		t.Errorf("Features = %d, want 38", info.Features)
	}
	if info.Path != testModel {
		t.Errorf("Path = %q", info.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		content string
		wantErr string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.json"), wantErr: "read model"},
		{name: "pickle", path: filepath.Join(dir, "model.pkl"), content: "x", wantErr: "unsupported format"},
		{name: "not json", path: filepath.Join(dir, "garbage.json"), content: "\x80\x04\x95", wantErr: "not a valid JSON"},
		{name: "no learner", path: filepath.Join(dir, "empty.json"), content: `{"version": [2, 0, 3]}`, wantErr: "missing learner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.content != "" {
				if err := os.WriteFile(tt.path, []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			_, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	base := loadTestModel(t)

	tests := []struct {
		name    string
		path    string
		value   any
		wantErr string
	}{
		{"objective", "learner.objective.name", "multi:softprob", "unsupported objective"},
		{"multi-class", "learner.learner_model_param.num_class", "3", "multi-class"},
		{"booster", "learner.gradient_booster.name", "gblinear", "unsupported booster"},
		{"feature count", "learner.learner_model_param.num_feature", "12", "declares 12 features"},
		{"split index", "learner.gradient_booster.model.trees.1.split_indices.0", 99, "splits on feature 99"},
		{"cycle", "learner.gradient_booster.model.trees.1.left_children.0", 0, "invalid children"},
		{"categorical", "learner.gradient_booster.model.trees.0.split_type.0", 1, "categorical"},
		{"ragged", "learner.gradient_booster.model.trees.0.default_left", []int{1}, "disagree in length"},
		{"base score", "learner.learner_model_param.base_score", "abc", "parse base_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(patch(t, base, tt.path, tt.value))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	b, err := Load(testModel)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(features.Vector)
		want   float64
	}{
		{"reference reading", func(features.Vector) {}, 95},
		{"clean air", func(v features.Vector) { v["PM2.5_log"] = 2 }, 65},
		{"coarse particles", func(v features.Vector) { v["PM10_log"] = 5 }, 175},
		{"other station", func(v features.Vector) { features.SetStation(v, "Shunyi") }, 90},
		{"missing value takes default branch", func(v features.Vector) { v["PM2.5_log"] = math.NaN() }, 65},
		{"threshold goes right", func(v features.Vector) { v["PM2.5_log"] = 3.0 }, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := features.Example()
			tt.mutate(v)
			if got := predictVector(t, b, v); got != tt.want {
				t.Errorf("Predict = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredict_RowLength(t *testing.T) {
	b, err := Load(testModel)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Predict([]float64{1, 2, 3})
	if !errors.Is(err, ErrPredict) {
		t.Fatalf("err = %v, want ErrPredict", err)
	}
}

func TestPredict_BestIteration(t *testing.T) {
	data := patch(t, loadTestModel(t), "learner.attributes.best_iteration", "0")
	b, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Info().UsedTrees != 1 {
		t.Fatalf("UsedTrees = %d, want 1", b.Info().UsedTrees)
	}
	if got := predictVector(t, b, features.Example()); got != 90 {
		t.Errorf("Predict = %v, want 90", got)
	}
}

func TestPredict_BracketedBaseScore(t *testing.T) {
	data := patch(t, loadTestModel(t), "learner.learner_model_param.base_score", "[1E1]")
	b, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := predictVector(t, b, features.Example()); got != 55 {
		t.Errorf("Predict = %v, want 55", got)
	}
}

func TestPredict_LogLink(t *testing.T) {
	data := loadTestModel(t)
	data = patch(t, data, "learner.objective.name", "reg:gamma")
	data = patch(t, data, "learner.learner_model_param.base_score", "1E0")
	data = patch(t, data, "learner.gradient_booster.model.trees.0.split_conditions.3", 1.0)
	b, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	// margin = log(1) + 1 + 5
	got := predictVector(t, b, features.Example())
	if want := math.Exp(6); math.Abs(got-want) > 1e-6 {
		t.Errorf("Predict = %v, want %v", got, want)
	}
}

func TestPredict_Dart(t *testing.T) {
	data := loadTestModel(t)
	trees := gjson.GetBytes(data, "learner.gradient_booster.model").Raw

	dart, err := sjson.SetRawBytes(data, "learner.gradient_booster", []byte(`{"name":"dart","weight_drop":[0.5,1]}`))
	if err != nil {
		t.Fatal(err)
	}
	dart, err = sjson.SetRawBytes(dart, "learner.gradient_booster.gbtree.model", []byte(trees))
	if err != nil {
		t.Fatal(err)
	}

	b, err := Parse(dart)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// 50 + 0.5*40 + 5
	if got := predictVector(t, b, features.Example()); got != 75 {
		t.Errorf("Predict = %v, want 75", got)
	}
}

func TestPredict_Concurrent(t *testing.T) {
	b, err := Load(testModel)
	if err != nil {
		t.Fatal(err)
	}
	row, err := b.Schema().Frame(features.Example())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := b.Predict(row)
			if err == nil && got != 95 {
				err = errors.New("unexpected prediction")
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestParse_NoFeatureNamesFallsBackToDefault(t *testing.T) {
	data, err := sjson.DeleteBytes(loadTestModel(t), "learner.feature_names")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := b.Schema().Names(); got[29] != "station_Dongsi" {
		t.Errorf("Names()[29] = %q, want station_Dongsi", got[29])
	}
}
