// Package animate concatenates rendered frames into a looping GIF.
package animate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/banshee-data/radarloop/internal/fsutil"
)

// ErrNoFrames is returned when there is nothing to assemble.
var ErrNoFrames = errors.New("animate: no frames")

// Assembler writes GIF animations from PNG frames.
type Assembler struct {
	fs fsutil.FileSystem
	// MaxWidth, when positive, scales frames down to at most this many pixels
	// wide before quantisation.
	MaxWidth int
}

// New returns an Assembler reading and writing through fsys (the OS
// filesystem when nil).
func New(fsys fsutil.FileSystem) *Assembler {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Assembler{fs: fsys}
}

// Delay converts a frame duration to GIF delay units (hundredths of a second).
func Delay(d time.Duration) int {
	return int(d / (10 * time.Millisecond))
}

// LoopCount maps the loop flag to the GIF loop count: 0 loops forever, -1
// plays once.
func LoopCount(loop bool) int {
	if loop {
		return 0
	}
	return -1
}

// Assemble reads framePaths in the order given and writes them to output,
// each shown for frameDuration. The order is not changed here.
func (a *Assembler) Assemble(framePaths []string, output string, frameDuration time.Duration, loop bool) (err error) {
	if len(framePaths) == 0 {
		return ErrNoFrames
	}

	anim := &gif.GIF{LoopCount: LoopCount(loop)}
	var bounds image.Rectangle
	for i, path := range framePaths {
		img, err := a.readFrame(path)
		if err != nil {
			return err
		}
		if i == 0 {
			bounds = a.targetBounds(img.Bounds())
			anim.Config = image.Config{Width: bounds.Dx(), Height: bounds.Dy(), ColorModel: color.Palette(palette.Plan9)}
		}
		anim.Image = append(anim.Image, a.quantize(img, bounds))
		anim.Delay = append(anim.Delay, Delay(frameDuration))
	}

	w, err := a.fs.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", output, cerr)
		}
		if err != nil {
			_ = a.fs.Remove(output)
		}
	}()
	if err = gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("encode %s: %w", output, err)
	}
	return nil
}

func (a *Assembler) readFrame(path string) (image.Image, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (a *Assembler) targetBounds(src image.Rectangle) image.Rectangle {
	w, h := src.Dx(), src.Dy()
	if a.MaxWidth > 0 && w > a.MaxWidth {
		h = h * a.MaxWidth / w
		w = a.MaxWidth
	}
	return image.Rect(0, 0, w, h)
}

// quantize maps img onto the Plan 9 palette at the target size, dithering
// with Floyd-Steinberg. Frames of a different size are scaled to fit.
func (a *Assembler) quantize(img image.Image, bounds image.Rectangle) *image.Paletted {
	src := img
	if img.Bounds().Size() != bounds.Size() {
		scaled := image.NewRGBA(bounds)
		xdraw.CatmullRom.Scale(scaled, bounds, img, img.Bounds(), xdraw.Src, nil)
		src = scaled
	}
	dst := image.NewPaletted(bounds, palette.Plan9)
	xdraw.FloydSteinberg.Draw(dst, bounds, src, src.Bounds().Min)
	return dst
}
