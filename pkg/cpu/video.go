package cpu

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"

	"gochip8/pkg/grid"
)

const (
	DisplayWidth  = 64
	DisplayHeight = 32
)

// Framebuffer is the row-major pixel grid, true meaning lit.
type Framebuffer [DisplayWidth * DisplayHeight]bool

// Display is the monochrome framebuffer with XOR sprite drawing.
type Display struct {
	pixels Framebuffer
	dirty  bool
}

// NewDisplay returns a cleared display.
func NewDisplay() *Display {
	d := &Display{}
	d.Clear()
	return d
}

// Clear switches every pixel off and marks the display dirty.
func (d *Display) Clear() {
	d.pixels = Framebuffer{}
	d.dirty = true
}

// Draw XORs sprite rows onto the grid with the top-left corner at (x, y).
// The caller masks x and y into the grid; pixels that then fall past the
// right or bottom edge are clipped. It reports whether any lit pixel was
// switched off.
func (d *Display) Draw(x, y byte, sprite []byte) bool {
	collision := false
	for row, bits := range sprite {
		py := int(y) + row
		if py >= DisplayHeight {
			break
		}
		for bit := 0; bit < 8; bit++ {
			if bits&(0x80>>bit) == 0 {
				continue
			}
			px := int(x) + bit
			if px >= DisplayWidth {
				break
			}
			i := grid.GetIndex(px, py, DisplayWidth)
			if d.pixels[i] {
				collision = true
			}
			d.pixels[i] = !d.pixels[i]
		}
	}
	if len(sprite) > 0 {
		d.dirty = true
	}
	return collision
}

// Pixel reports whether (x, y) is lit. Coordinates outside the grid are off.
func (d *Display) Pixel(x, y int) bool {
	if !grid.InBounds(x, y, DisplayWidth, DisplayHeight) {
		return false
	}
	return d.pixels[grid.GetIndex(x, y, DisplayWidth)]
}

// Framebuffer returns a copy of the grid.
func (d *Display) Framebuffer() Framebuffer {
	return d.pixels
}

// Dirty reports whether the grid changed since MarkPresented.
func (d *Display) Dirty() bool { return d.dirty }

// MarkPresented clears the dirty flag once a host has rendered the grid.
func (d *Display) MarkPresented() { d.dirty = false }

// RGBA expands the grid into a 64×32 RGBA8888 byte slice using on and off
// as pixel colours.
func (d *Display) RGBA(on, off color.RGBA) []byte {
	return d.pixels.RGBA(on, off)
}

// RGBA expands fb into RGBA8888 bytes, row-major.
func (fb *Framebuffer) RGBA(on, off color.RGBA) []byte {
	pix := make([]byte, DisplayWidth*DisplayHeight*4)
	for i, lit := range fb {
		c := off
		if lit {
			c = on
		}
		pix[i*4+0] = c.R
		pix[i*4+1] = c.G
		pix[i*4+2] = c.B
		pix[i*4+3] = c.A
	}
	return pix
}

// Image returns the grid as an *image.RGBA, white on black.
func (d *Display) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    d.RGBA(color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, color.RGBA{0, 0, 0, 0xFF}),
		Stride: DisplayWidth * 4,
		Rect:   image.Rect(0, 0, DisplayWidth, DisplayHeight),
	}
}

// SaveScreenshot encodes the grid as a PNG and writes it to filename.
func (d *Display) SaveScreenshot(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating screenshot")
	}
	defer f.Close()
	return errors.Wrap(png.Encode(f, d.Image()), "encoding screenshot")
}
