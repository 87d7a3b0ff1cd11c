package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStaticValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		areas   []AreaConfig
		wantErr string
	}{
		{
			name:    "empty catalog",
			areas:   nil,
			wantErr: "catalog is empty",
		},
		{
			name:    "missing id",
			areas:   []AreaConfig{{URL: "https://example.test/a"}},
			wantErr: "id is required",
		},
		{
			name: "missing url",
			areas: []AreaConfig{
				{ID: "salmiya", Name: "Salmiya"},
			},
			wantErr: "url is required",
		},
		{
			name: "duplicate id",
			areas: []AreaConfig{
				{ID: "salmiya", URL: "https://example.test/a"},
				{ID: "salmiya", URL: "https://example.test/b"},
			},
			wantErr: "duplicate id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewStatic(tt.areas)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStaticPreservesOrder(t *testing.T) {
	t.Parallel()

	s, err := NewStatic([]AreaConfig{
		{ID: "salmiya", Name: "Salmiya", URL: "https://example.test/salmiya", Parent: "hawally"},
		{ID: "jahra", Name: "Jahra", URL: "https://example.test/jahra"},
		{ID: "hawally", Name: "Hawally", URL: "https://example.test/hawally"},
	})
	require.NoError(t, err)

	units, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 3)
	require.Equal(t, "salmiya", units[0].ID)
	require.Equal(t, "jahra", units[1].ID)
	require.Equal(t, "hawally", units[2].ID)
	require.Equal(t, "hawally", units[0].Parent)
}

func TestStaticListReturnsCopy(t *testing.T) {
	t.Parallel()

	s, err := NewStatic([]AreaConfig{
		{ID: "salmiya", URL: "https://example.test/salmiya"},
	})
	require.NoError(t, err)

	first, err := s.List(context.Background())
	require.NoError(t, err)
	first[0].ID = "mutated"

	second, err := s.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "salmiya", second[0].ID)
}
