package document

import (
	"bufio"
	"context"
	"image"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/wudi/pagekit/args"
	"github.com/wudi/pagekit/bytesink"
	"github.com/wudi/pagekit/encode"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/render"
	"github.com/wudi/pagekit/workerpool"
)

// Result kinds.
const (
	ResultBuffer = "buffer"
	ResultFile   = "file"
)

// Result is a finished render.
type Result struct {
	Type string
	// Format is the method string the render was requested with.
	Format string
	Data   []byte
	Path   string
}

// Value converts r for the scripting layer.
func (r *Result) Value() args.Value {
	if r.Type == ResultFile {
		return args.Map(map[string]args.Value{
			"type": args.String(r.Type),
			"path": args.String(r.Path),
		})
	}
	return args.Map(map[string]args.Value{
		"type":   args.String(r.Type),
		"format": args.String(r.Format),
		"data":   args.Bytes(r.Data),
	})
}

// Slice selects part of the displayed page in fractions, lower-left origin.
type Slice struct {
	X, Y, W, H float64
}

// RenderOptions tune a render. A nil *RenderOptions renders the whole page
// with default encoder settings.
type RenderOptions struct {
	// Compression names the TIFF compression scheme.
	Compression string
	// Quality is the JPEG quality, 0 to 100. Nil keeps 100.
	Quality     *int
	Progressive bool
	Slice       *Slice
}

func (o *RenderOptions) value() args.Value {
	if o == nil {
		return args.Undefined()
	}
	m := make(map[string]args.Value)
	if o.Compression != "" {
		m["compression"] = args.String(o.Compression)
	}
	if o.Quality != nil {
		m["quality"] = args.Int(*o.Quality)
	}
	if o.Progressive {
		m["progressive"] = args.Bool(true)
	}
	if s := o.Slice; s != nil {
		m["slice"] = args.Map(map[string]args.Value{
			"x": args.Number(s.X),
			"y": args.Number(s.Y),
			"w": args.Number(s.W),
			"h": args.Number(s.H),
		})
	}
	return args.Map(m)
}

// RenderArgs carries dynamically typed render arguments. Path is only read
// when ToFile is set. Missing Options render the whole page.
type RenderArgs struct {
	ToFile  bool
	Path    args.Value
	Method  args.Value
	PPI     args.Value
	Options args.Value
}

// RenderToBuffer renders the page into memory. format is "png", "jpeg" or
// "tiff", matched by prefix.
func (p *Page) RenderToBuffer(format string, ppi float64, opts *RenderOptions) (*Result, error) {
	return p.Render(RenderArgs{
		Method:  args.String(format),
		PPI:     args.Number(ppi),
		Options: opts.value(),
	})
}

// RenderToFile renders the page into the file at path, replacing it.
func (p *Page) RenderToFile(path, format string, ppi float64, opts *RenderOptions) (*Result, error) {
	return p.Render(RenderArgs{
		ToFile:  true,
		Path:    args.String(path),
		Method:  args.String(format),
		PPI:     args.Number(ppi),
		Options: opts.value(),
	})
}

// RenderToBufferAsync is RenderToBuffer on the document's worker pool. ctx
// bounds only the wait for a queue slot.
func (p *Page) RenderToBufferAsync(ctx context.Context, format string, ppi float64, opts *RenderOptions) *workerpool.Future[*Result] {
	return p.RenderAsync(ctx, RenderArgs{
		Method:  args.String(format),
		PPI:     args.Number(ppi),
		Options: opts.value(),
	})
}

// RenderToFileAsync is RenderToFile on the document's worker pool.
func (p *Page) RenderToFileAsync(ctx context.Context, path, format string, ppi float64, opts *RenderOptions) *workerpool.Future[*Result] {
	return p.RenderAsync(ctx, RenderArgs{
		ToFile:  true,
		Path:    args.String(path),
		Method:  args.String(format),
		PPI:     args.Number(ppi),
		Options: opts.value(),
	})
}

// Render validates a, then renders inline.
func (p *Page) Render(a RenderArgs) (*Result, error) {
	job, err := p.newJob(a)
	if err != nil {
		return nil, err
	}
	return job.run(context.Background())
}

// RenderAsync validates a, then renders on the document's worker pool.
// Validation failures settle the returned future.
func (p *Page) RenderAsync(ctx context.Context, a RenderArgs) *workerpool.Future[*Result] {
	job, err := p.newJob(a)
	if err != nil {
		return workerpool.Resolved[*Result](nil, err)
	}
	f := workerpool.Go(ctx, p.doc.cfg.pool, func() (*Result, error) {
		return job.run(context.Background())
	})
	if _, err, ok := f.Result(); ok && err != nil && !job.started.Load() {
		job.discard()
	}
	return f
}

type destination int

const (
	toBuffer destination = iota
	toFile
)

// renderJob is a validated render with its destination open.
type renderJob struct {
	page    *Page
	dest    destination
	method  string
	format  encode.Format
	ppi     float64
	enc     encode.Options
	slice   Slice
	area    image.Rectangle
	started atomic.Bool

	// path is the output file, or the temporary file of a TIFF buffer.
	path string
	file *os.File
	sink *bytesink.Sink
}

func (p *Page) newJob(a RenderArgs) (*renderJob, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return p.prepare(a)
}

// prepare validates in order path, method, resolution, destination,
// options and slice. Once the destination is open any failure removes it.
func (p *Page) prepare(a RenderArgs) (job *renderJob, err error) {
	job = &renderJob{
		page:  p,
		dest:  toBuffer,
		enc:   encode.DefaultOptions(),
		slice: Slice{W: 1, H: 1},
	}
	job.enc.Logger = p.doc.cfg.logger
	if a.ToFile {
		job.dest = toFile
		path, ok := a.Path.Str()
		if !ok {
			return nil, argError(msgPathType)
		}
		if path == "" {
			return nil, argError(msgPathEmpty)
		}
		job.path = path
	}

	method, ok := a.Method.Str()
	if !ok || method == "" {
		return nil, argError(msgMethodType)
	}
	format, ok := encode.ParseFormat(method)
	if !ok {
		return nil, argError(msgMethodUnknown)
	}
	job.method, job.format = method, format

	ppi, ok := a.PPI.Num()
	if !ok {
		return nil, argError(msgPPIType)
	}
	if !(ppi > 0) {
		return nil, argError(msgPPIRange)
	}
	job.ppi = ppi

	if err := job.open(); err != nil {
		return nil, err
	}
	opened := job
	defer func() {
		if err != nil {
			opened.discard()
		}
	}()
	if err := job.setOptions(a.Options); err != nil {
		return nil, err
	}
	w, h := p.size()
	if err := job.scale(w, h); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *renderJob) open() error {
	var err error
	switch {
	case j.dest == toFile:
		j.file, err = os.Create(j.path)
	case j.format == encode.TIFF:
		j.file, err = os.CreateTemp("", "psmpl*")
		if err == nil {
			j.path = j.file.Name()
		}
	default:
		j.sink = bytesink.New(0)
	}
	if err != nil {
		return renderError(msgOpenStream, err)
	}
	return nil
}

// discard closes the destination and removes any file it created.
func (j *renderJob) discard() {
	if j.file != nil {
		j.file.Close()
		os.Remove(j.path)
		j.file = nil
	}
	if j.sink != nil {
		j.sink.Close()
	}
}

func (j *renderJob) setOptions(v args.Value) error {
	if v.Missing() {
		return nil
	}
	if !v.IsMap() {
		return argError(msgOptionsType)
	}
	switch j.format {
	case encode.TIFF:
		if c, ok := v.Get("compression"); ok {
			name, ok := c.Str()
			if !ok {
				return argError(msgCompressionType)
			}
			if name == "" {
				return argError(msgCompressionEmpty)
			}
			if _, err := encode.TIFFCompression(name, nil); err != nil {
				return argError(msgMethodUnknown)
			}
			j.enc.Compression = name
		}
	case encode.JPEG:
		if q, ok := v.Get("quality"); ok {
			n, ok := q.Uint32()
			if !ok {
				return argError(msgQualityType)
			}
			if n > 100 {
				return argError(msgQualityRange)
			}
			j.enc.Quality = int(n)
		}
		if pv, ok := v.Get("progressive"); ok {
			b, ok := pv.Boolean()
			if !ok {
				return argError(msgProgressiveType)
			}
			j.enc.Progressive = b
		}
	}
	if s, ok := v.Get("slice"); ok {
		return j.setSlice(s)
	}
	return nil
}

func (j *renderJob) setSlice(v args.Value) error {
	if !v.IsMap() {
		return argError(msgSliceType)
	}
	n, err := args.Numbers(v, "x", "y", "w", "h")
	if err != nil {
		return argError(msgSliceShape)
	}
	for _, f := range n {
		if !(f >= 0 && f <= 1) {
			return argError(msgSliceRange)
		}
	}
	j.slice = ClampSlice(Slice{X: n[0], Y: n[1], W: n[2], H: n[3]})
	return nil
}

// ClampSlice shrinks s to end at the page edges.
func ClampSlice(s Slice) Slice {
	if s.Y+s.H > 1 {
		s.H = 1 - s.Y
	}
	if s.X+s.W > 1 {
		s.W = 1 - s.X
	}
	return s
}

// scale converts the slice to device pixels of a w by h point page.
func (j *renderJob) scale(w, h float64) error {
	k := j.ppi / 72
	sw, sh := w*k, h*k
	if render.CheckArea(sw*j.slice.W, sh*j.slice.H) != nil || !(sw <= math.MaxInt32 && sh <= math.MaxInt32) {
		return renderError(msgTooBig, render.ErrTooBig)
	}
	x := int(sw * j.slice.X)
	y := int(sh - sh*j.slice.Y - sh*j.slice.H)
	dx := int(sw * j.slice.W)
	dy := int(sh * j.slice.H)
	j.area = image.Rect(x, y, x+dx, y+dy)
	return nil
}

func (j *renderJob) run(ctx context.Context) (*Result, error) {
	j.started.Store(true)
	err := j.execute(ctx)
	return j.finish(err)
}

func (j *renderJob) execute(ctx context.Context) error {
	p := j.page
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	ctx, span := p.doc.cfg.tracer.StartSpan(ctx, observability.SpanRender)
	defer span.Finish()
	span.SetTag(observability.TagFormat, j.format.String())
	span.SetTag(observability.TagPPI, j.ppi)
	log := p.doc.cfg.logger.With(observability.Int("page", p.num), observability.String("format", j.format.String()))
	start := time.Now()

	// An empty slice yields an empty image, which the encoder rejects.
	img := image.NewRGBA(image.Rectangle{})
	if !j.area.Empty() {
		img, err = p.doc.cfg.rasterizer.Rasterize(ctx, render.Request{
			Page:        p.model.page,
			Number:      p.num,
			PPI:         j.ppi,
			Slice:       j.area,
			Annotations: p.model.annotationDicts(),
			Source:      p.doc.serialize,
		})
		if err != nil {
			span.SetError(err)
			return renderError(err.Error(), err)
		}
	}
	enc, err := encode.New(j.format, j.enc)
	if err != nil {
		return renderError(err.Error(), err)
	}
	var w io.Writer = j.sink
	var buf *bufio.Writer
	if j.file != nil {
		buf = bufio.NewWriter(j.file)
		w = buf
	}
	if err := enc.Encode(w, img); err != nil {
		span.SetError(err)
		return renderError(err.Error(), err)
	}
	if buf != nil {
		if err := buf.Flush(); err != nil {
			return renderError(err.Error(), err)
		}
	} else {
		span.SetTag(observability.TagBytes, j.sink.Len())
	}
	log.Debug("page rendered",
		observability.Int("width", img.Bounds().Dx()),
		observability.Int("height", img.Bounds().Dy()),
		observability.Duration("elapsed", time.Since(start)))
	return nil
}

// finish closes the destination and builds the result. A failed file
// render leaves no file behind.
func (j *renderJob) finish(err error) (*Result, error) {
	switch {
	case j.dest == toFile:
		cerr := j.file.Close()
		j.file = nil
		if err == nil && cerr != nil {
			err = renderError(cerr.Error(), cerr)
		}
		if err != nil {
			os.Remove(j.path)
			return nil, err
		}
		return &Result{Type: ResultFile, Path: j.path}, nil

	case j.file != nil:
		cerr := j.file.Close()
		j.file = nil
		data, rerr := os.ReadFile(j.path)
		os.Remove(j.path)
		if err == nil && cerr != nil {
			err = renderError(cerr.Error(), cerr)
		}
		if err == nil && rerr != nil {
			err = renderError(msgReadTemp, rerr)
		}
		if err != nil {
			return nil, err
		}
		return &Result{Type: ResultBuffer, Format: j.method, Data: data}, nil
	}

	data := j.sink.Take()
	j.sink.Close()
	if err != nil {
		return nil, err
	}
	return &Result{Type: ResultBuffer, Format: j.method, Data: data}, nil
}
