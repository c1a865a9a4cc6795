package trace

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

var actionColor = map[Action]color.RGBA{
	Work:   {R: 0x20, G: 0x80, B: 0x20, A: 0xff},
	IO:     {R: 0x20, G: 0x40, B: 0xd0, A: 0xff},
	Ckpt:   {R: 0xd0, G: 0xa0, B: 0x20, A: 0xff},
	Wasted: {R: 0xc0, G: 0x20, B: 0x20, A: 0xff},
}

// PNGTrace renders a coarse per-node-row, per-time-bucket occupancy
// image on Close. It is a faithful interface implementation of the
// original's PNG visualisation sink, not a pixel-perfect port of its
// gradient-shaded rendering.
type PNGTrace struct {
	nbNodes   int
	duration  simtime.Time
	bucketDur simtime.Time
	img       *image.RGBA
	out       io.Writer
}

// NewPNGTrace builds a trace that will render an nbNodes-row image
// spanning [0, duration) into widthBuckets columns.
func NewPNGTrace(out io.Writer, nbNodes int, duration simtime.Time, widthBuckets int) *PNGTrace {
	if widthBuckets < 1 {
		widthBuckets = 1
	}
	bucket := duration / simtime.Time(widthBuckets)
	if bucket < 1 {
		bucket = 1
	}
	return &PNGTrace{
		nbNodes:   nbNodes,
		duration:  duration,
		bucketDur: bucket,
		img:       image.NewRGBA(image.Rect(0, 0, widthBuckets, nbNodes)),
		out:       out,
	}
}

func (p *PNGTrace) Record(app *workload.App, action Action, start, duration simtime.Time) {
	c, ok := actionColor[action]
	if !ok {
		return
	}
	colStart := int(start / p.bucketDur)
	colEnd := int((start + duration) / p.bucketDur)
	if colEnd <= colStart {
		colEnd = colStart + 1
	}
	bounds := p.img.Bounds()
	for _, node := range app.Nodes {
		if node < 0 || node >= p.nbNodes {
			continue
		}
		for col := colStart; col < colEnd && col < bounds.Max.X; col++ {
			if col < 0 {
				continue
			}
			p.img.SetRGBA(col, node, c)
		}
	}
}

// InterruptAction is a no-op: PNGTrace renders what Record already
// reported and has no retroactive relabeling pass.
func (p *PNGTrace) InterruptAction(app *workload.App, now simtime.Time) {}

func (p *PNGTrace) Close() error {
	return png.Encode(p.out, p.img)
}
