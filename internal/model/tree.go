package model

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// tree is one regression tree in XGBoost's flat array layout. For leaf
// nodes, split holds the leaf value.
type tree struct {
	left        []int32
	right       []int32
	feature     []int32
	split       []float32
	defaultLeft []bool
}

func parseTree(t gjson.Result, numFeatures int) (*tree, error) {
	left := t.Get("left_children").Array()
	right := t.Get("right_children").Array()
	indices := t.Get("split_indices").Array()
	conds := t.Get("split_conditions").Array()
	defaults := t.Get("default_left").Array()

	n := len(left)
	if n == 0 {
		return nil, fmt.Errorf("tree has no nodes")
	}
	if len(right) != n || len(indices) != n || len(conds) != n || len(defaults) != n {
		return nil, fmt.Errorf("tree arrays disagree in length (%d nodes)", n)
	}
	for _, st := range t.Get("split_type").Array() {
		if st.Int() != 0 {
			return nil, fmt.Errorf("categorical splits are not supported")
		}
	}

	tr := &tree{
		left:        make([]int32, n),
		right:       make([]int32, n),
		feature:     make([]int32, n),
		split:       make([]float32, n),
		defaultLeft: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		l, r := left[i].Int(), right[i].Int()
		tr.left[i] = int32(l)
		tr.right[i] = int32(r)
		tr.split[i] = float32(conds[i].Float())
		tr.defaultLeft[i] = defaults[i].Bool()

		if l == -1 {
			continue
		}
		// Children always follow their parent, which also rules out cycles.
		if l <= int64(i) || l >= int64(n) || r <= int64(i) || r >= int64(n) {
			return nil, fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		f := indices[i].Int()
		if f < 0 || f >= int64(numFeatures) {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, f, numFeatures)
		}
		tr.feature[i] = int32(f)
	}
	return tr, nil
}

// leaf walks the tree for row and returns the leaf value reached.
func (t *tree) leaf(row []float64) float32 {
	n := int32(0)
	for {
		l := t.left[n]
		if l == -1 {
			return t.split[n]
		}
		x := row[t.feature[n]]
		switch {
		case math.IsNaN(x):
			if t.defaultLeft[n] {
				n = l
			} else {
				n = t.right[n]
			}
		case float32(x) < t.split[n]:
			n = l
		default:
			n = t.right[n]
		}
	}
}
