package model

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lox/aqiserve/internal/features"
)

type link int

const (
	linkIdentity link = iota
	linkLog
	linkLogistic
)

var objectiveLinks = map[string]link{
	"reg:squarederror":     linkIdentity,
	"reg:squaredlogerror":  linkIdentity,
	"reg:absoluteerror":    linkIdentity,
	"reg:pseudohubererror": linkIdentity,
	"reg:quantileerror":    linkIdentity,
	"reg:gamma":            linkLog,
	"reg:tweedie":          linkLog,
	"count:poisson":        linkLog,
	"reg:logistic":         linkLogistic,
}

// Info summarises a loaded booster.
type Info struct {
	Path      string
	Version   string
	Booster   string
	Objective string
	BaseScore float64
	Trees     int
	UsedTrees int
	Features  int
}

// Booster is a gradient-boosted tree ensemble loaded from XGBoost's JSON
// model format. It is immutable after Load.
type Booster struct {
	info       Info
	schema     *features.Schema
	trees      []*tree
	weights    []float32
	link       link
	baseMargin float64
}

// Load reads and parses an XGBoost JSON model (Booster.save_model("*.json")).
func Load(path string) (*Booster, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ubj", ".pkl", ".pickle", ".bin", ".model", ".joblib":
		return nil, fmt.Errorf("load model %s: unsupported format, export with save_model(\"model.json\")", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	b.info.Path = path
	return b, nil
}

// Parse decodes an XGBoost JSON model document.
func Parse(data []byte) (*Booster, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("not a valid JSON document")
	}
	doc := gjson.ParseBytes(data)
	learner := doc.Get("learner")
	if !learner.Exists() {
		return nil, fmt.Errorf("missing learner section")
	}

	b := &Booster{}
	var version []string
	for _, v := range doc.Get("version").Array() {
		version = append(version, v.String())
	}
	b.info.Version = strings.Join(version, ".")

	params := learner.Get("learner_model_param")
	if n := params.Get("num_class").Int(); n > 1 {
		return nil, fmt.Errorf("multi-class models are not supported (num_class=%d)", n)
	}
	if n := params.Get("num_target").Int(); n > 1 {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%d)", n)
	}

	schema, err := parseSchema(learner, int(params.Get("num_feature").Int()))
	if err != nil {
		return nil, err
	}
	b.schema = schema
	b.info.Features = schema.Len()

	b.info.Objective = learner.Get("objective.name").String()
	l, ok := objectiveLinks[b.info.Objective]
	if !ok {
		return nil, fmt.Errorf("unsupported objective %q", b.info.Objective)
	}
	b.link = l

	base, err := parseBaseScore(params.Get("base_score").String())
	if err != nil {
		return nil, err
	}
	b.info.BaseScore = base
	if b.baseMargin, err = toMargin(l, base); err != nil {
		return nil, err
	}

	gb := learner.Get("gradient_booster")
	b.info.Booster = gb.Get("name").String()
	var model gjson.Result
	switch b.info.Booster {
	case "gbtree":
		model = gb.Get("model")
	case "dart":
		model = gb.Get("gbtree.model")
		for _, w := range gb.Get("weight_drop").Array() {
			b.weights = append(b.weights, float32(w.Float()))
		}
	default:
		return nil, fmt.Errorf("unsupported booster %q", b.info.Booster)
	}

	rawTrees := model.Get("trees").Array()
	if len(rawTrees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	if b.weights != nil && len(b.weights) != len(rawTrees) {
		return nil, fmt.Errorf("dart weights (%d) do not match trees (%d)", len(b.weights), len(rawTrees))
	}
	b.trees = make([]*tree, len(rawTrees))
	for i, rt := range rawTrees {
		t, err := parseTree(rt, schema.Len())
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		b.trees[i] = t
	}
	b.info.Trees = len(b.trees)
	b.info.UsedTrees = usedTrees(learner, model, len(b.trees))
	return b, nil
}

func parseSchema(learner gjson.Result, numFeature int) (*features.Schema, error) {
	var names []string
	for _, n := range learner.Get("feature_names").Array() {
		names = append(names, n.String())
	}
	if len(names) == 0 {
		if numFeature != 0 && numFeature != len(features.DefaultNames) {
			return nil, fmt.Errorf("model has no feature names and %d features, cannot map columns", numFeature)
		}
		names = features.DefaultNames
	}
	if numFeature != 0 && numFeature != len(names) {
		return nil, fmt.Errorf("model declares %d features but names %d", numFeature, len(names))
	}
	return features.NewSchema(names)
}

// parseBaseScore accepts both "5E-1" and the bracketed "[5E-1]" form newer
// XGBoost releases write.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(s, "[]"))
	if s == "" {
		return 0.5, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return 0, fmt.Errorf("vector base_score %q is not supported", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse base_score %q: %w", s, err)
	}
	return v, nil
}

func toMargin(l link, base float64) (float64, error) {
	switch l {
	case linkLog:
		if base <= 0 {
			return 0, fmt.Errorf("base_score %v must be positive for a log link", base)
		}
		return math.Log(base), nil
	case linkLogistic:
		if base <= 0 || base >= 1 {
			return 0, fmt.Errorf("base_score %v must be in (0, 1) for a logistic link", base)
		}
		return math.Log(base / (1 - base)), nil
	default:
		return base, nil
	}
}

// usedTrees honours early stopping: predictions use only the trees up to
// best_iteration, like XGBRegressor.predict does.
func usedTrees(learner, model gjson.Result, total int) int {
	best := learner.Get("attributes.best_iteration")
	if !best.Exists() {
		return total
	}
	it, err := strconv.Atoi(best.String())
	if err != nil || it < 0 {
		return total
	}
	parallel := int(model.Get("gbtree_model_param.num_parallel_tree").Int())
	if parallel < 1 {
		parallel = 1
	}
	if n := (it + 1) * parallel; n < total {
		return n
	}
	return total
}

func (b *Booster) Schema() *features.Schema {
	return b.schema
}

func (b *Booster) Info() Info {
	return b.info
}

// Predict evaluates the ensemble for one row in Schema order.
func (b *Booster) Predict(row []float64) (float64, error) {
	if len(row) != b.schema.Len() {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrPredict, b.schema.Len(), len(row))
	}

	margin := b.baseMargin
	for i, t := range b.trees[:b.info.UsedTrees] {
		v := t.leaf(row)
		if b.weights != nil {
			v *= b.weights[i]
		}
		margin += float64(v)
	}

	var out float64
	switch b.link {
	case linkLog:
		out = math.Exp(margin)
	case linkLogistic:
		out = 1 / (1 + math.Exp(-margin))
	default:
		out = margin
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: non-finite output %v", ErrPredict, out)
	}
	return out, nil
}
