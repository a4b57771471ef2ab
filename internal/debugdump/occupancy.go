// Package debugdump renders diagnostic images of the streaming state.
package debugdump

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"

	"voxstream/internal/traversal"
)

// SlotsPerRow is the width of the occupancy grid in slots.
const SlotsPerRow = 64

var (
	FreeColor      = color.RGBA{0x10, 0x10, 0x10, 0xff}
	RequiredColor  = color.RGBA{0x30, 0xc0, 0x40, 0xff}
	EvictableColor = color.RGBA{0xe0, 0x90, 0x20, 0xff}
	separatorColor = color.RGBA{0x50, 0x50, 0x80, 0xff}
)

// Occupancy draws one block per megatexture, one cell per slot. Free slots
// are dark, slots of required nodes green and evictable ones orange; finer
// levels are drawn brighter.
func Occupancy(tr *traversal.Traversal, cell int) *image.RGBA {
	if cell < 1 {
		cell = 1
	}
	mts := tr.Megatextures()

	owners := make([]map[int]*traversal.KeyframeNode, len(mts))
	for i := range owners {
		owners[i] = make(map[int]*traversal.KeyframeNode)
	}
	for _, kn := range tr.ResidentKeyframeNodes() {
		for ch, tok := range kn.Slots() {
			owners[ch][tok.Index] = kn
		}
	}

	height := 0
	for _, mt := range mts {
		height += rowsFor(mt.Capacity())*cell + 1
	}
	img := image.NewRGBA(image.Rect(0, 0, SlotsPerRow*cell, max(height, 1)))
	draw.Draw(img, img.Bounds(), &image.Uniform{separatorColor}, image.Point{}, draw.Src)

	y0 := 0
	for ch, mt := range mts {
		for slot := range mt.Capacity() {
			c := FreeColor
			if kn, ok := owners[ch][slot]; ok {
				c = slotColor(tr, kn)
			}
			x := (slot % SlotsPerRow) * cell
			y := y0 + (slot/SlotsPerRow)*cell
			draw.Draw(img, image.Rect(x, y, x+cell, y+cell), &image.Uniform{c}, image.Point{}, draw.Src)
		}
		y0 += rowsFor(mt.Capacity())*cell + 1
	}
	return img
}

func rowsFor(capacity int) int {
	return (capacity + SlotsPerRow - 1) / SlotsPerRow
}

func slotColor(tr *traversal.Traversal, kn *traversal.KeyframeNode) color.RGBA {
	c := EvictableColor
	if tr.IsRequired(kn) {
		c = RequiredColor
	}
	// brighten by level, saturating
	boost := uint8(min(kn.SpatialNode().Level()*12, 0x3f))
	c.R = addSat(c.R, boost)
	c.G = addSat(c.G, boost)
	c.B = addSat(c.B, boost)
	return c
}

func addSat(a, b uint8) uint8 {
	if int(a)+int(b) > 0xff {
		return 0xff
	}
	return a + b
}

// WriteOccupancy encodes the occupancy image as BMP.
func WriteOccupancy(w io.Writer, tr *traversal.Traversal, cell int) error {
	return errors.Wrap(bmp.Encode(w, Occupancy(tr, cell)), "encode occupancy")
}

// WriteOccupancyFile writes the occupancy image to path.
func WriteOccupancyFile(path string, tr *traversal.Traversal, cell int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %q", path)
	}
	if err := WriteOccupancy(f, tr, cell); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %q", path)
}
