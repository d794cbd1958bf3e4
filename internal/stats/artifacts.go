package stats

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/bits"
	"os"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
)

// waterfallBuckets is the number of latency columns in the heatmap. Column i
// covers latencies whose bit length is i, so the axis is log2-scaled from
// 1ns up past a minute.
const waterfallBuckets = 48

const (
	waterfallCellW = 12
	waterfallCellH = 12
)

// waterfallArtifact accumulates one row of log-scaled latency buckets per
// window and renders them as a heatmap on save.
type waterfallArtifact struct {
	path    string
	current [waterfallBuckets]uint64
	rows    [][waterfallBuckets]uint64
}

func newWaterfallArtifact(path string) *waterfallArtifact {
	return &waterfallArtifact{path: path}
}

func waterfallBucket(lat uint64) int {
	b := bits.Len64(lat)
	if b >= waterfallBuckets {
		b = waterfallBuckets - 1
	}
	return b
}

func (w *waterfallArtifact) record(lat uint64) {
	w.current[waterfallBucket(lat)]++
}

func (w *waterfallArtifact) closeRow() {
	w.rows = append(w.rows, w.current)
	w.current = [waterfallBuckets]uint64{}
}

func (w *waterfallArtifact) save() error {
	rows := w.rows
	if len(rows) == 0 {
		rows = [][waterfallBuckets]uint64{{}}
	}

	var max uint64
	for _, row := range rows {
		for _, c := range row {
			if c > max {
				max = c
			}
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, waterfallBuckets*waterfallCellW, len(rows)*waterfallCellH))
	for y, row := range rows {
		for x, c := range row {
			fillCell(img, x, y, heat(c, max))
		}
	}

	return withFileLock(w.path, func(f *os.File) error {
		return png.Encode(f, img)
	})
}

func fillCell(img *image.RGBA, cx, cy int, col color.RGBA) {
	for y := cy * waterfallCellH; y < (cy+1)*waterfallCellH; y++ {
		for x := cx * waterfallCellW; x < (cx+1)*waterfallCellW; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

// heat maps a bucket count onto a black-to-orange ramp, log-compressed so a
// handful of outliers stays visible next to the mode.
func heat(count, max uint64) color.RGBA {
	if count == 0 || max == 0 {
		return color.RGBA{A: 0xff}
	}
	v := math.Log1p(float64(count)) / math.Log1p(float64(max))
	return color.RGBA{
		R: uint8(255 * v),
		G: uint8(140 * v),
		B: 0,
		A: 0xff,
	}
}

// maxTraceSamples caps the raw trace buffer. A multi-window run at high rates
// can produce far more samples than is useful to dump; the head of the stream
// is kept and the cut is noted in the file.
const maxTraceSamples = 1 << 20

type traceArtifact struct {
	path      string
	buf       []byte
	n         int
	truncated bool
}

func newTraceArtifact(path string) *traceArtifact {
	return &traceArtifact{path: path}
}

func (t *traceArtifact) record(s Sample) {
	if t.n >= maxTraceSamples {
		t.truncated = true
		return
	}
	t.buf = fmt.Appendf(t.buf, "%d %d %s\n", s.Start, s.Stop, s.Metric)
	t.n++
}

func (t *traceArtifact) save(runID ulid.ULID) error {
	return withFileLock(t.path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		fmt.Fprintf(w, "# pingmill trace run=%s\n", runID)
		fmt.Fprintf(w, "# start stop metric (monotonic ns)\n")
		if _, err := w.Write(t.buf); err != nil {
			return err
		}
		if t.truncated {
			fmt.Fprintf(w, "# truncated at %d samples\n", maxTraceSamples)
		}
		return w.Flush()
	})
}

// withFileLock serializes artifact writes across processes so two concurrent
// runs pointed at the same output path cannot interleave.
func withFileLock(path string, write func(*os.File) error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
