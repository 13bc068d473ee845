package rover

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tdewolff/canvas"
)

func testSnapshot() Snapshot {
	s := NewStore()
	s.PlaceObstacle(0, 0, 1, North)
	s.PlaceObstacle(10, 12, 2, East)
	s.AssignTarget(2, 15)
	s.PlaceVehicle(5, 5, North)
	return s.Snapshot()
}

// ---------------------------------------------------------------------------
// Raster
// ---------------------------------------------------------------------------

func TestGridRenderer_Size(t *testing.T) {
	r := NewGridRenderer()
	w, h := r.Size()
	want := r.Margin + GridSize*r.CellSize + 1
	if w != want || h != want {
		t.Errorf("Size() = %dx%d, want %dx%d", w, h, want, want)
	}

	img := r.Render(NewStore().Snapshot())
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Errorf("image bounds = %v, want %dx%d", img.Bounds(), w, h)
	}
}

func TestGridRenderer_BottomUpRows(t *testing.T) {
	r := NewGridRenderer()
	img := r.Render(testSnapshot())

	// obstacle 1 sits in logical row 0, which is the bottom row of the image
	x0, y0 := r.cellOrigin(0, 0)
	if y0 != (GridSize-1)*r.CellSize {
		t.Fatalf("cell (0,0) origin y = %d, want bottom row %d", y0, (GridSize-1)*r.CellSize)
	}
	got := img.RGBAAt(x0+2, y0+r.CellSize-2)
	if want := toRGBA(r.Palette.Obstacle); got != want {
		t.Errorf("obstacle body pixel = %v, want %v", got, want)
	}

	// the north face bar runs along the top of the cell
	got = img.RGBAAt(x0+2, y0+2)
	if want := toRGBA(r.Palette.Face); got != want {
		t.Errorf("face pixel = %v, want %v", got, want)
	}

	// the same column in the top row stays empty
	tx, ty := r.cellOrigin(0, GridSize-1)
	got = img.RGBAAt(tx+2, ty+r.CellSize-2)
	if want := toRGBA(r.Palette.Background); got != want {
		t.Errorf("empty cell pixel = %v, want background %v", got, want)
	}
}

func TestGridRenderer_Faces(t *testing.T) {
	r := NewGridRenderer()
	tests := []struct {
		dir    Direction
		dx, dy int // pixel offset inside the cell expected to be on the face bar
	}{
		{North, r.CellSize / 2, 2},
		{South, r.CellSize / 2, r.CellSize - 2},
		{East, r.CellSize - 2, r.CellSize / 2},
		{West, 2, r.CellSize / 2},
	}

	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			s := NewStore()
			s.PlaceObstacle(4, 4, 7, tt.dir)
			img := r.Render(s.Snapshot())

			x0, y0 := r.cellOrigin(4, 4)
			if got, want := img.RGBAAt(x0+tt.dx, y0+tt.dy), toRGBA(r.Palette.Face); got != want {
				t.Errorf("face pixel = %v, want %v", got, want)
			}
		})
	}
}

func TestGridRenderer_Vehicle(t *testing.T) {
	r := NewGridRenderer()
	img := r.Render(testSnapshot())

	fp := NewVehicle(5, 5, North).Footprint()
	x0, y0 := r.cellOrigin(fp.MinX, fp.MaxY)
	w, h := fp.Width()*r.CellSize, fp.Height()*r.CellSize

	body := img.RGBAAt(x0+3, y0+h-3)
	if body == toRGBA(r.Palette.Background) {
		t.Error("vehicle body should tint the background")
	}

	// heading marker sits towards the top edge for North
	marker := img.RGBAAt(x0+w/2, y0+h/2-(h/2-r.CellSize/3))
	if want := toRGBA(r.Palette.Heading); marker != want {
		t.Errorf("heading marker pixel = %v, want %v", marker, want)
	}
}

func TestGridRenderer_WritePNG(t *testing.T) {
	r := NewGridRenderer()
	var buf bytes.Buffer
	if err := r.WritePNG(&buf, testSnapshot()); err != nil {
		t.Fatalf("WritePNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	w, h := r.Size()
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Errorf("decoded bounds = %v, want %dx%d", img.Bounds(), w, h)
	}
}

func TestGridRenderer_SavePNG(t *testing.T) {
	r := NewGridRenderer()
	path := filepath.Join(t.TempDir(), "grid.png")
	if err := r.SavePNG(path, testSnapshot()); err != nil {
		t.Fatalf("SavePNG() error = %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("SavePNG() wrote nothing: %v", err)
	}

	if err := r.SavePNG(filepath.Join(t.TempDir(), "missing", "grid.png"), testSnapshot()); err == nil {
		t.Error("SavePNG() into a missing directory should fail")
	}
}

func TestBlendColors(t *testing.T) {
	bg := color.RGBA{100, 100, 100, 255}

	if got := blendColors(bg, color.NRGBA{200, 0, 50, 255}); got != (color.NRGBA{200, 0, 50, 255}) {
		t.Errorf("opaque blend = %v", got)
	}
	if got := blendColors(bg, color.NRGBA{200, 0, 50, 0}); got != (color.NRGBA{100, 100, 100, 255}) {
		t.Errorf("transparent blend = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Vector
// ---------------------------------------------------------------------------

func TestVectorRenderer_RenderToSVG(t *testing.T) {
	r := NewVectorRenderer()

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf, testSnapshot()); err != nil {
		t.Fatalf("Failed to render to SVG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("SVG output is empty")
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Errorf("Output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Errorf("Output does not contain path elements")
	}
}

func TestVectorRenderer_RenderToPNG(t *testing.T) {
	r := NewVectorRenderer()
	r.Resolution = canvas.DPMM(2)

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf, testSnapshot()); err != nil {
		t.Fatalf("Failed to render to PNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	side := int(r.size() * 2)
	if d := img.Bounds().Dx() - side; d < -1 || d > 1 {
		t.Errorf("PNG width = %d, want about %d", img.Bounds().Dx(), side)
	}
}

func TestVectorRenderer_EmptySnapshot(t *testing.T) {
	r := NewVectorRenderer()
	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf, NewStore().Snapshot()); err != nil {
		t.Fatalf("RenderToSVG() on an empty arena: %v", err)
	}
}

func TestFaceEdge(t *testing.T) {
	tests := []struct {
		dir            Direction
		x0, y0, x1, y1 float64
	}{
		{North, 2, 4, 3, 4},
		{South, 2, 3, 3, 3},
		{East, 3, 3, 3, 4},
		{West, 2, 3, 2, 4},
	}

	for _, tt := range tests {
		x0, y0, x1, y1 := faceEdge(2, 3, 3, 4, tt.dir)
		if x0 != tt.x0 || y0 != tt.y0 || x1 != tt.x1 || y1 != tt.y1 {
			t.Errorf("faceEdge(%s) = (%v,%v)-(%v,%v), want (%v,%v)-(%v,%v)",
				tt.dir, x0, y0, x1, y1, tt.x0, tt.y0, tt.x1, tt.y1)
		}
	}
}

func TestNRGBAToRGBA(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want color.RGBA
	}{
		{"opaque", color.NRGBA{10, 20, 30, 255}, color.RGBA{10, 20, 30, 255}},
		{"transparent", color.NRGBA{10, 20, 30, 0}, color.RGBA{0, 0, 0, 0}},
		{"half", color.NRGBA{200, 100, 0, 128}, color.RGBA{100, 50, 0, 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nrgbaToRGBA(tt.in); got != tt.want {
				t.Errorf("nrgbaToRGBA(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
