package advisor

import (
	"sort"

	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

// Suggestion is an unscored strategy/parameter combination
type Suggestion struct {
	Strategy   string                 `json:"strategy"`
	Parameters map[string]interface{} `json:"parameters"`
}

// parameterGrids are the values searched per template parameter
var parameterGrids = map[string]map[string][]interface{}{
	"MovingAverageCrossover": {
		"short_window":     {5, 10, 20, 30},
		"long_window":      {50, 100, 200},
		"signal_threshold": {0.0, 0.01},
	},
	"BollingerBands": {
		"window":  {10, 20, 30},
		"num_std": {1.5, 2.0, 2.5},
	},
	"MomentumStrategy": {
		"momentum_window": {5, 10, 14, 20, 30},
		"threshold":       {0.02, 0.05, 0.1},
	},
	"MeanReversion": {
		"window":      {10, 20, 30, 60},
		"z_threshold": {1.0, 1.5, 2.0},
	},
}

// LocalGrid expands the parameter grid of each named strategy, dropping
// combinations the strategy rejects. Strategies are interleaved so a
// truncated list still covers every template. An empty names list
// searches every registered strategy.
func LocalGrid(registry *strategy.Registry, names []string, max int) []Suggestion {
	if len(names) == 0 {
		names = registry.Names()
	}

	var perStrategy [][]Suggestion
	for _, name := range names {
		grid, ok := parameterGrids[name]
		if !ok {
			if tmpl, err := registry.Template(name); err == nil {
				grid = defaultsGrid(tmpl)
			} else {
				continue
			}
		}
		var valid []Suggestion
		for _, params := range expand(grid) {
			def := models.StrategyDefinition{Name: name, Parameters: params}
			if registry.ValidateDefinition(def) == nil {
				valid = append(valid, Suggestion{Strategy: name, Parameters: params})
			}
		}
		if len(valid) > 0 {
			perStrategy = append(perStrategy, valid)
		}
	}

	var out []Suggestion
	for i := 0; ; i++ {
		added := false
		for _, list := range perStrategy {
			if i < len(list) {
				out = append(out, list[i])
				added = true
				if max > 0 && len(out) >= max {
					return out
				}
			}
		}
		if !added {
			return out
		}
	}
}

// defaultsGrid searches only the template defaults
func defaultsGrid(tmpl models.StrategyTemplate) map[string][]interface{} {
	grid := make(map[string][]interface{}, len(tmpl.Parameters))
	for name, p := range tmpl.Parameters {
		grid[name] = []interface{}{p.Default}
	}
	return grid
}

// expand returns the cartesian product of grid in a stable order
func expand(grid map[string][]interface{}) []map[string]interface{} {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]interface{}{{}}
	for _, k := range keys {
		var next []map[string]interface{}
		for _, base := range combos {
			for _, v := range grid[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}
