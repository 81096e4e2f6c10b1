package entities

import "github.com/LeonardoBeccarini/rootwater/pkg/sapflow"

// Tree is a stem instrumented with a three-point sap flow sensor.
type Tree struct {
	FieldID  string  `json:"field_id" yaml:"-"`
	ID       string  `json:"id" yaml:"id"`
	Species  string  `json:"species" yaml:"species"`     // key of the flux profile table
	RadiusCM float64 `json:"radius_cm" yaml:"radius_cm"` // at breast height
	// Allometry defaults to beech.
	Allometry string `json:"allometry,omitempty" yaml:"allometry,omitempty"`
}

// SapTree resolves the flux profile and allometry of the tree.
func (t Tree) SapTree() (sapflow.Tree, error) {
	st, err := sapflow.NewTree(t.RadiusCM, t.Species)
	if err != nil {
		return sapflow.Tree{}, err
	}
	if t.Allometry != "" {
		st.Allometry = sapflow.Allometry(t.Allometry)
	}
	return st, nil
}
