package models

// Parameter types advertised by strategy templates
const (
	ParamTypeInteger = "integer"
	ParamTypeFloat   = "float"
)

// StrategyParameterInfo describes one tunable parameter of a template
type StrategyParameterInfo struct {
	Type        string      `json:"type"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
}

// StrategyTemplate is a named, parameterized trading rule
type StrategyTemplate struct {
	ID          string                           `json:"id"`
	Name        string                           `json:"name"`
	Description string                           `json:"description"`
	Parameters  map[string]StrategyParameterInfo `json:"parameters"`
}

// Defaults returns the default value of every parameter
func (t StrategyTemplate) Defaults() map[string]interface{} {
	out := make(map[string]interface{}, len(t.Parameters))
	for name, info := range t.Parameters {
		out[name] = info.Default
	}
	return out
}
