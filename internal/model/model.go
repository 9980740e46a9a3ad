package model

import (
	"errors"

	"github.com/lox/aqiserve/internal/features"
)

// DefaultPath is where the service expects the trained booster.
const DefaultPath = "models/xgboost_model.json"

// ErrPredict marks failures inside the model, as opposed to bad input.
var ErrPredict = errors.New("model prediction failed")

// Predictor turns one row laid out in Schema order into an AQI estimate.
// Implementations must be safe for concurrent use.
type Predictor interface {
	Schema() *features.Schema
	Predict(row []float64) (float64, error)
}

// FuncPredictor adapts a plain function to Predictor.
type FuncPredictor struct {
	schema *features.Schema
	fn     func(row []float64) (float64, error)
}

func NewFunc(schema *features.Schema, fn func(row []float64) (float64, error)) *FuncPredictor {
	return &FuncPredictor{schema: schema, fn: fn}
}

func (f *FuncPredictor) Schema() *features.Schema {
	return f.schema
}

func (f *FuncPredictor) Predict(row []float64) (float64, error) {
	return f.fn(row)
}
