package storage

import (
	"testing"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateAssignment(t *testing.T) {
	ids := []model.TileID{"a", "b", "c"}

	tests := []struct {
		name       string
		assignment map[model.TileID]int
		wantErr    bool
	}{
		{"permutation", map[model.TileID]int{"a": 2, "b": 0, "c": 1}, false},
		{"identity", map[model.TileID]int{"a": 0, "b": 1, "c": 2}, false},
		{"missing tile", map[model.TileID]int{"a": 0, "b": 1}, true},
		{"unknown tile", map[model.TileID]int{"a": 0, "b": 1, "x": 2}, true},
		{"duplicate index", map[model.TileID]int{"a": 0, "b": 0, "c": 1}, true},
		{"out of range", map[model.TileID]int{"a": 0, "b": 1, "c": 3}, true},
		{"negative", map[model.TileID]int{"a": -1, "b": 1, "c": 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAssignment(ids, tt.assignment)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidAssignment)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
