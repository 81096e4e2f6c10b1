package entities

// Field represents a forest stand with its soil-moisture probes and sap
// flow trees.
type Field struct {
	ID     string  `json:"id" yaml:"id"`         // unique field identifier
	Stand  string  `json:"stand" yaml:"stand"`   // e.g. "beech", "oak"
	Probes []Probe `json:"probes" yaml:"probes"` // soil-moisture profiles
	Trees  []Tree  `json:"trees" yaml:"trees"`   // sap flow instrumented trees
}

func (f *Field) GetProbe(probeID string) *Probe {
	for i := range f.Probes {
		if f.Probes[i].ID == probeID {
			return &f.Probes[i]
		}
	}
	return nil
}

func (f *Field) GetTree(treeID string) *Tree {
	for i := range f.Trees {
		if f.Trees[i].ID == treeID {
			return &f.Trees[i]
		}
	}
	return nil
}
