package rover

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDirection_Rotation(t *testing.T) {
	tests := []struct {
		d                     Direction
		left, right, opposite Direction
	}{
		{North, West, East, South},
		{East, North, South, West},
		{South, East, West, North},
		{West, South, North, East},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.left, tt.d.Left())
			assert.Equal(t, tt.right, tt.d.Right())
			assert.Equal(t, tt.opposite, tt.d.Opposite())
			assert.Equal(t, tt.d, tt.d.Left().Right())
			assert.Equal(t, tt.d, tt.d.Right().Right().Right().Right())
		})
	}
}

func TestDirection_Delta(t *testing.T) {
	tests := []struct {
		d      Direction
		dx, dy int
	}{
		{North, 0, 1},
		{East, 1, 0},
		{South, 0, -1},
		{West, -1, 0},
		{Direction(9), 0, 0},
	}
	for _, tt := range tests {
		dx, dy := tt.d.Delta()
		assert.Equal(t, tt.dx, dx, tt.d.String())
		assert.Equal(t, tt.dy, dy, tt.d.String())
	}
}

func TestDirection_StringAndLetter(t *testing.T) {
	assert.Equal(t, "NORTH", North.String())
	assert.Equal(t, "W", West.Letter())
	assert.Equal(t, "Direction(7)", Direction(7).String())
	assert.False(t, Direction(-1).Valid())
	assert.Len(t, Directions(), 4)
}

func TestParseDirectionLetter(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"N", North, false},
		{"e", East, false},
		{" S ", South, false},
		{"w", West, false},
		{"X", North, true},
		{"", North, true},
		{"NORTH", North, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirectionLetter(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDirectionCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirection(t *testing.T) {
	for _, in := range []string{"EAST", "east", "E", "e"} {
		d, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, East, d, in)
	}
	_, err := ParseDirection("UP")
	assert.ErrorIs(t, err, ErrInvalidDirectionCode)
}

func TestMustParseDirectionLetter(t *testing.T) {
	assert.Equal(t, South, MustParseDirectionLetter("S"))
	assert.Panics(t, func() { MustParseDirectionLetter("Q") })
}

func TestDirection_TextMarshalling(t *testing.T) {
	type wrapper struct {
		Heading Direction `json:"heading" yaml:"heading"`
	}

	data, err := json.Marshal(wrapper{Heading: West})
	require.NoError(t, err)
	assert.JSONEq(t, `{"heading":"WEST"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"heading":"s"}`), &w))
	assert.Equal(t, South, w.Heading)

	require.NoError(t, yaml.Unmarshal([]byte("heading: EAST\n"), &w))
	assert.Equal(t, East, w.Heading)

	assert.Error(t, json.Unmarshal([]byte(`{"heading":"sideways"}`), &w))

	_, err = json.Marshal(wrapper{Heading: Direction(5)})
	assert.Error(t, err)
}
