package rover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayout = `
vehicle:
  x: 1
  y: 1
  heading: N
obstacles:
  - id: 1
    x: 5
    y: 5
    direction: EAST
    target: 11
  - id: 2
    x: 10
    y: 3
    direction: s
`

func TestLoadLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLayout), 0644))

	l, err := LoadLayout(path)
	require.NoError(t, err)
	require.NotNil(t, l.Vehicle)
	assert.Equal(t, LayoutPose{X: 1, Y: 1, Heading: North}, *l.Vehicle)
	require.Len(t, l.Obstacles, 2)
	assert.Equal(t, East, l.Obstacles[0].Direction)
	require.NotNil(t, l.Obstacles[0].Target)
	assert.Equal(t, 11, *l.Obstacles[0].Target)
	assert.Equal(t, South, l.Obstacles[1].Direction)
	assert.Nil(t, l.Obstacles[1].Target)
}

func TestLoadLayout_Errors(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout file not found")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("obstacles:\n  - direction: UP\n"), 0644))
	_, err = LoadLayout(path)
	assert.ErrorIs(t, err, ErrInvalidDirectionCode)
}

func TestLayout_Apply(t *testing.T) {
	l := &Layout{
		Vehicle: &LayoutPose{X: 1, Y: 1, Heading: North},
		Obstacles: []LayoutObstacle{
			{ID: 1, X: 5, Y: 5, Direction: East, Target: intPtr(NullTarget)},
			{ID: 2, X: 25, Y: 3, Direction: South},
			{ID: 3, X: 5, Y: 5, Direction: West},
		},
	}

	s := NewStore()
	skipped, err := l.Apply(s)
	require.NoError(t, err)
	require.Len(t, skipped, 2, "out of bounds and occupied entries are skipped")
	assert.Equal(t, 2, skipped[0].ID)
	assert.Equal(t, 3, skipped[1].ID)

	o, ok := s.Obstacle(1)
	require.True(t, ok)
	assert.Equal(t, NullTarget, o.TargetID)
	assert.True(t, o.HasTarget)

	v, ok := s.Vehicle()
	require.True(t, ok)
	assert.Equal(t, 1, v.X)
}

func TestLayout_ApplyErrors(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   string
	}{
		{
			name:   "zero id",
			layout: Layout{Obstacles: []LayoutObstacle{{ID: 0, X: 1, Y: 1}}},
			want:   "id must be positive",
		},
		{
			name: "duplicate id",
			layout: Layout{Obstacles: []LayoutObstacle{
				{ID: 4, X: 1, Y: 1},
				{ID: 4, X: 2, Y: 2},
			}},
			want: "duplicate obstacle id 4",
		},
		{
			name: "vehicle over obstacle",
			layout: Layout{
				Vehicle:   &LayoutPose{X: 4, Y: 4, Heading: East},
				Obstacles: []LayoutObstacle{{ID: 1, X: 5, Y: 5}},
			},
			want: "vehicle at (4,4)",
		},
		{
			name:   "id already in the store",
			layout: Layout{Obstacles: []LayoutObstacle{{ID: 1, X: 3, Y: 3}, {ID: 9, X: 6, Y: 6}}},
			want:   "duplicate obstacle id 9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.PlaceObstacle(0, 0, 9, North)

			skipped, err := tt.layout.Apply(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, skipped)

			assert.Len(t, s.Obstacles(), 1, "a rejected layout leaves the store as it was")
			_, ok := s.Vehicle()
			assert.False(t, ok)
		})
	}
}

func TestLayout_RoundTrip(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(3, 4, 1, West)
	s.PlaceObstacle(7, 0, 2, North)
	s.AssignTarget(2, 12)
	s.PlaceVehicle(10, 10, South)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveLayout(path, LayoutFromSnapshot(s.Snapshot())))

	loaded, err := LoadLayout(path)
	require.NoError(t, err)

	restored := NewStore()
	skipped, err := loaded.Apply(restored)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	want, got := s.Snapshot(), restored.Snapshot()
	assert.Equal(t, want.Obstacles, got.Obstacles)
	assert.Equal(t, want.Vehicle, got.Vehicle)
}

func TestLayoutFromSnapshot_Empty(t *testing.T) {
	l := LayoutFromSnapshot(NewStore().Snapshot())
	assert.Nil(t, l.Vehicle)
	assert.NotNil(t, l.Obstacles)
	assert.Empty(t, l.Obstacles)
}
