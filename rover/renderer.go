package rover

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Palette holds the colours shared by the raster and vector renderers
type Palette struct {
	Background color.NRGBA
	GridLine   color.NRGBA
	Obstacle   color.NRGBA
	Face       color.NRGBA
	Target     color.NRGBA
	Vehicle    color.NRGBA
	Heading    color.NRGBA
	Text       color.NRGBA
}

// DefaultPalette returns the standard arena colours
func DefaultPalette() Palette {
	return Palette{
		Background: color.NRGBA{240, 240, 240, 255},
		GridLine:   color.NRGBA{200, 200, 200, 255},
		Obstacle:   color.NRGBA{40, 40, 40, 255},
		Face:       color.NRGBA{255, 215, 0, 255},   // Gold
		Target:     color.NRGBA{46, 139, 87, 255},   // Sea green
		Vehicle:    color.NRGBA{100, 149, 237, 200}, // Cornflower blue
		Heading:    color.NRGBA{0, 0, 139, 255},     // Dark blue
		Text:       color.NRGBA{255, 255, 255, 255},
	}
}

// GridRenderer draws a Snapshot as a raster image. The model's bottom-up
// rows are flipped here so that row 0 ends up at the bottom of the picture.
type GridRenderer struct {
	CellSize int // pixels per cell
	Margin   int // room for axis labels
	Palette  Palette
}

// NewGridRenderer creates a raster renderer with default settings
func NewGridRenderer() *GridRenderer {
	return &GridRenderer{
		CellSize: 24,
		Margin:   20,
		Palette:  DefaultPalette(),
	}
}

// Size returns the image dimensions in pixels
func (r *GridRenderer) Size() (int, int) {
	side := r.Margin + GridSize*r.CellSize + 1
	return side, side
}

// cellOrigin returns the top-left pixel of logical cell (x, y)
func (r *GridRenderer) cellOrigin(x, y int) (int, int) {
	return r.Margin + x*r.CellSize, ScreenRow(y) * r.CellSize
}

// Render draws the snapshot
func (r *GridRenderer) Render(snap Snapshot) *image.RGBA {
	w, h := r.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.Palette.Background), image.Point{}, draw.Src)

	r.drawGridLines(img)
	r.drawAxes(img)

	for _, o := range snap.Obstacles {
		r.drawObstacle(img, o)
	}
	if snap.Vehicle != nil {
		r.drawVehicle(img, *snap.Vehicle)
	}
	return img
}

// WritePNG encodes the snapshot as PNG
func (r *GridRenderer) WritePNG(w io.Writer, snap Snapshot) error {
	return png.Encode(w, r.Render(snap))
}

// SavePNG writes the snapshot as a PNG file
func (r *GridRenderer) SavePNG(path string, snap Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := r.WritePNG(f, snap); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

func (r *GridRenderer) drawGridLines(img *image.RGBA) {
	line := toRGBA(r.Palette.GridLine)
	top, bottom := 0, GridSize*r.CellSize
	left, right := r.Margin, r.Margin+GridSize*r.CellSize
	for i := 0; i <= GridSize; i++ {
		px := r.Margin + i*r.CellSize
		for y := top; y <= bottom; y++ {
			img.SetRGBA(px, y, line)
		}
		py := i * r.CellSize
		for x := left; x <= right; x++ {
			img.SetRGBA(x, py, line)
		}
	}
}

func (r *GridRenderer) drawAxes(img *image.RGBA) {
	c := color.RGBA{80, 80, 80, 255}
	for i := 0; i < GridSize; i++ {
		label := strconv.Itoa(i)
		// x axis under the grid
		x, _ := r.cellOrigin(i, 0)
		drawText(img, x+2, GridSize*r.CellSize+14, label, c)
		// y axis left of the grid
		_, y := r.cellOrigin(0, i)
		drawText(img, 1, y+r.CellSize-7, label, c)
	}
}

func (r *GridRenderer) drawObstacle(img *image.RGBA, o Obstacle) {
	x0, y0 := r.cellOrigin(o.X, o.Y)
	fillRect(img, x0+1, y0+1, r.CellSize-1, r.CellSize-1, toRGBA(r.Palette.Obstacle))

	// Bar along the side the obstacle faces
	bar := max(r.CellSize/6, 2)
	face := toRGBA(r.Palette.Face)
	switch o.Direction {
	case North:
		fillRect(img, x0+1, y0+1, r.CellSize-1, bar, face)
	case South:
		fillRect(img, x0+1, y0+r.CellSize-bar, r.CellSize-1, bar, face)
	case East:
		fillRect(img, x0+r.CellSize-bar, y0+1, bar, r.CellSize-1, face)
	case West:
		fillRect(img, x0+1, y0+1, bar, r.CellSize-1, face)
	}

	text := toRGBA(r.Palette.Text)
	if o.HasTarget && !IsNullTarget(o.TargetID) {
		text = toRGBA(r.Palette.Target)
		drawText(img, x0+r.CellSize/2-3, y0+r.CellSize/2+5, strconv.Itoa(o.TargetID), text)
		return
	}
	drawText(img, x0+r.CellSize/2-3, y0+r.CellSize/2+5, strconv.Itoa(o.ID), text)
}

func (r *GridRenderer) drawVehicle(img *image.RGBA, v Vehicle) {
	fp := v.Footprint()
	// top-left pixel is the cell at (MinX, MaxY)
	x0, y0 := r.cellOrigin(fp.MinX, fp.MaxY)
	w, h := fp.Width()*r.CellSize, fp.Height()*r.CellSize

	fill := r.Palette.Vehicle
	for y := y0 + 1; y < y0+h; y++ {
		for x := x0 + 1; x < x0+w; x++ {
			if image.Pt(x, y).In(img.Bounds()) {
				img.Set(x, y, blendColors(img.RGBAAt(x, y), fill))
			}
		}
	}

	// Heading marker at the leading edge
	cx, cy := x0+w/2, y0+h/2
	dx, dy := v.Heading.Delta()
	mx, my := cx+dx*(w/2-r.CellSize/3), cy-dy*(h/2-r.CellSize/3)
	drawSquare(img, mx, my, r.CellSize/3, toRGBA(r.Palette.Heading))
}

// blendColors alpha-blends fg over bg
func blendColors(bg color.RGBA, fg color.NRGBA) color.NRGBA {
	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha
	return color.NRGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*invAlpha),
		A: 255,
	}
}

func toRGBA(c color.NRGBA) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

// fillRect fills a w×h block whose top-left pixel is (x, y)
func fillRect(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h).Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawSquare draws a filled square centred on (cx, cy)
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	fillRect(img, cx-half, cy-half, size, size, c)
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
