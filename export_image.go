package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	defaultCellSize = 40
	maxTextSize     = 18.0
	minTextSize     = 6.0
)

var loadFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

func fontFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// arrowPaths are the polylines of each arrow look in unit cell coordinates.
// The last segment carries the arrow head.
var arrowPaths = map[Look][][2]float64{
	LookRight:     {{0.15, 0.5}, {0.85, 0.5}},
	LookDown:      {{0.5, 0.15}, {0.5, 0.85}},
	LookRightDown: {{0.15, 0.3}, {0.65, 0.3}, {0.65, 0.85}},
	LookDownRight: {{0.3, 0.15}, {0.3, 0.65}, {0.85, 0.65}},
	LookLeftDown:  {{0.7, 0.15}, {0.7, 0.65}, {0.15, 0.65}},
	LookUpRight:   {{0.3, 0.85}, {0.3, 0.35}, {0.85, 0.35}},
}

// writeImage draws the grid and encodes it as JPEG or PNG.
func writeImage(w io.Writer, g *Grid, f Format, opts ExportOptions) error {
	img, err := renderGrid(g, opts)
	if err != nil {
		return err
	}
	if f == FormatJPEG {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	}
	return png.Encode(w, img)
}

// renderGrid draws the grid the way the editor shows it outside edit mode.
func renderGrid(g *Grid, opts ExportOptions) (image.Image, error) {
	ttf, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %v", err)
	}
	cs := float64(opts.CellSize)
	if cs <= 0 {
		cs = defaultCellSize
	}

	dc := gg.NewContext(int(float64(g.Cols)*cs)+1, int(float64(g.Rows)*cs)+1)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	for r, row := range g.Cells {
		for c, cell := range row {
			if cell.Kind() == KindMerged {
				continue
			}
			x, y := float64(c)*cs+0.5, float64(r)*cs+0.5
			w, h := cs, cs
			if sr, sc, ok := footprint(cell); ok {
				w, h = float64(min(sc, g.Cols-c))*cs, float64(min(sr, g.Rows-r))*cs
			}
			drawCell(dc, ttf, cell, x, y, w, h, opts)

			dc.SetHexColor("#000000")
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, w, h)
			dc.Stroke()
		}
	}
	return dc.Image(), nil
}

func drawCell(dc *gg.Context, ttf *truetype.Font, cell Cell, x, y, w, h float64, opts ExportOptions) {
	switch v := cell.(type) {
	case Blocked:
		dc.SetHexColor("#000000")
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	case Clue:
		dc.SetHexColor("#e5e7eb")
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
		texts := make([]string, len(v.Subclues))
		for i, sc := range v.Subclues {
			texts[i] = sc.Text
		}
		drawFittedText(dc, ttf, strings.ToUpper(strings.Join(texts, "/")), x, y, w, h)
	case Solution:
		if opts.ShowSolutions && v.Letter != "" {
			dc.SetFontFace(fontFace(ttf, h*0.6))
			dc.SetHexColor("#000000")
			dc.DrawStringAnchored(v.Letter, x+w/2, y+h/2, 0.5, 0.35)
		}
	case Arrow:
		drawArrow(dc, v, x, y, w, h)
	case Image:
		drawPicture(dc, v.URL, x, y, w, h)
	}
}

// drawFittedText wraps text inside the box, shrinking the font from 18pt in
// half-point steps until it fits or reaches 6pt.
func drawFittedText(dc *gg.Context, ttf *truetype.Font, text string, x, y, w, h float64) {
	if text == "" {
		return
	}
	const pad = 2.0
	size := maxTextSize
	for ; size > minTextSize; size -= 0.5 {
		dc.SetFontFace(fontFace(ttf, size))
		lines := dc.WordWrap(text, w-2*pad)
		tw, th := dc.MeasureMultilineString(strings.Join(lines, "\n"), 1)
		if tw <= w-2*pad && th <= h-2*pad {
			break
		}
	}
	dc.SetFontFace(fontFace(ttf, size))
	dc.SetHexColor("#111827")
	dc.DrawStringWrapped(text, x+w/2, y+h/2, 0.5, 0.5, w-2*pad, 1, gg.AlignCenter)
}

func drawArrow(dc *gg.Context, a Arrow, x, y, w, h float64) {
	path, ok := arrowPaths[a.Look]
	if !ok {
		path = arrowPaths[LookRight]
	}
	lw := 1.5
	if a.Style == StyleBold {
		lw = 3
	}
	pt := func(p [2]float64) (float64, float64) { return x + p[0]*w, y + p[1]*h }

	dc.SetHexColor("#000000")
	dc.SetLineWidth(lw)
	dc.MoveTo(pt(path[0]))
	for _, p := range path[1:] {
		dc.LineTo(pt(p))
	}
	dc.Stroke()

	// Arrow head on the last segment.
	fx, fy := pt(path[len(path)-2])
	tx, ty := pt(path[len(path)-1])
	dx, dy := tx-fx, ty-fy
	length := math.Max(math.Abs(dx), math.Abs(dy))
	if length < 0.1 {
		return
	}
	dx, dy = dx/length, dy/length
	size := 4 + 2*lw
	dc.MoveTo(tx+dx*size/2, ty+dy*size/2)
	dc.LineTo(tx-dx*size/2+dy*size/2, ty-dy*size/2-dx*size/2)
	dc.LineTo(tx-dx*size/2-dy*size/2, ty-dy*size/2+dx*size/2)
	dc.ClosePath()
	dc.Fill()
}

// drawPicture scales the data URI image to cover the box. Undecodable
// images leave the box empty.
func drawPicture(dc *gg.Context, url string, x, y, w, h float64) {
	if url == "" {
		return
	}
	_, data, err := decodeDataURI(url)
	if err != nil {
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	dc.Push()
	dc.Translate(x, y)
	dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}
