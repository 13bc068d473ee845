package rover

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer draws a Snapshot as vector graphics. Canvas coordinates
// grow upwards like the model's, so no row flip is needed.
type VectorRenderer struct {
	CellSize   float64 // canvas units (mm) per cell
	Padding    float64
	Resolution canvas.Resolution // Resolution for PNG output
	Palette    Palette
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		CellSize:   10.0,
		Padding:    5.0,
		Resolution: canvas.DPI(150),
		Palette:    DefaultPalette(),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() float64 {
	return GridSize*r.CellSize + 2*r.Padding
}

// RenderToSVG writes the snapshot as an SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer, snap Snapshot) error {
	side := r.size()
	svgRenderer := svg.New(w, side, side, nil)
	r.renderToCanvas(svgRenderer, snap)
	return svgRenderer.Close()
}

// RenderToPNG rasterises the snapshot and writes it as a PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer, snap Snapshot) error {
	side := r.size()
	rast := rasterizer.New(side, side, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, snap)
	return png.Encode(w, rast)
}

// toCanvas maps a cell corner to canvas coordinates
func (r *VectorRenderer) toCanvas(x, y float64) (float64, float64) {
	return r.Padding + x*r.CellSize, r.Padding + y*r.CellSize
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, snap Snapshot) {
	side := r.size()

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Background)}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(side, side), bgStyle, canvas.Identity)

	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.GridLine)}
	gridStyle.StrokeWidth = 0.2

	for i := 0; i <= GridSize; i++ {
		p := &canvas.Path{}
		x1, y1 := r.toCanvas(float64(i), 0)
		x2, y2 := r.toCanvas(float64(i), GridSize)
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		x1, y1 = r.toCanvas(0, float64(i))
		x2, y2 = r.toCanvas(GridSize, float64(i))
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		renderer.RenderPath(p, gridStyle, canvas.Identity)
	}

	obstacleStyle := canvas.DefaultStyle
	obstacleStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Obstacle)}
	obstacleStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	faceStyle := canvas.DefaultStyle
	faceStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	faceStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Face)}
	faceStyle.StrokeWidth = r.CellSize / 6

	for _, o := range snap.Obstacles {
		b := RectFromRanges(o.X, o.X, o.Y, o.Y).Bound()
		x, y := r.toCanvas(b.Min[0], b.Min[1])
		renderer.RenderPath(canvas.Rectangle(r.CellSize, r.CellSize).Translate(x, y), obstacleStyle, canvas.Identity)

		face := &canvas.Path{}
		fx0, fy0, fx1, fy1 := faceEdge(b.Min[0], b.Min[1], b.Max[0], b.Max[1], o.Direction)
		cx0, cy0 := r.toCanvas(fx0, fy0)
		cx1, cy1 := r.toCanvas(fx1, fy1)
		face.MoveTo(cx0, cy0)
		face.LineTo(cx1, cy1)
		renderer.RenderPath(face, faceStyle, canvas.Identity)
	}

	if snap.Vehicle == nil {
		return
	}
	v := *snap.Vehicle
	b := v.Footprint().Bound()

	vehicleStyle := canvas.DefaultStyle
	vehicleStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Vehicle)}
	vehicleStyle.Stroke = canvas.Paint{Color: canvas.Black}
	vehicleStyle.StrokeWidth = 0.3

	x, y := r.toCanvas(b.Min[0], b.Min[1])
	w := (b.Max[0] - b.Min[0]) * r.CellSize
	h := (b.Max[1] - b.Min[1]) * r.CellSize
	renderer.RenderPath(canvas.Rectangle(w, h).Translate(x, y), vehicleStyle, canvas.Identity)

	headingStyle := canvas.DefaultStyle
	headingStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	headingStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Heading)}
	headingStyle.StrokeWidth = r.CellSize / 5

	c := b.Center()
	dx, dy := v.Heading.Delta()
	hx0, hy0 := r.toCanvas(c[0], c[1])
	hx1, hy1 := r.toCanvas(c[0]+float64(dx)*(b.Max[0]-b.Min[0])/2, c[1]+float64(dy)*(b.Max[1]-b.Min[1])/2)
	heading := &canvas.Path{}
	heading.MoveTo(hx0, hy0)
	heading.LineTo(hx1, hy1)
	renderer.RenderPath(heading, headingStyle, canvas.Identity)
}

// faceEdge returns the segment of a cell's border on the side d faces
func faceEdge(minX, minY, maxX, maxY float64, d Direction) (x0, y0, x1, y1 float64) {
	switch d {
	case North:
		return minX, maxY, maxX, maxY
	case South:
		return minX, minY, maxX, minY
	case East:
		return maxX, minY, maxX, maxY
	default:
		return minX, minY, minX, maxY
	}
}
