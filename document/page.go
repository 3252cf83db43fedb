package document

import (
	"context"
	"sync/atomic"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/extractor"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/ocr"
	"github.com/wudi/pagekit/render"
)

// Rect is a page box in points, lower-left origin.
type Rect = coords.Rect

// FracRect is a rectangle in fractions of the displayed page, lower-left
// origin.
type FracRect struct {
	X1, Y1, X2, Y2 float64
}

// Word is one word of the text layer in fractions of the displayed page.
type Word struct {
	X1, Y1, X2, Y2 float64
	Text           string
}

// ocrPPI is the resolution pages are rendered at for recognition.
const ocrPPI = 300

// Page is a handle on one page of a Document. Every method fails with
// ErrDocumentClosed after the page or its document is closed.
type Page struct {
	doc    *Document
	num    int
	model  *pageModel
	closed atomic.Bool
}

// acquire holds the document read lock until release is called.
func (p *Page) acquire() (release func(), err error) {
	if p.closed.Load() {
		return nil, ErrDocumentClosed
	}
	p.doc.mu.RLock()
	if p.doc.closed || p.closed.Load() {
		p.doc.mu.RUnlock()
		return nil, ErrDocumentClosed
	}
	return p.doc.mu.RUnlock, nil
}

// Close detaches the page from its document. It is idempotent.
func (p *Page) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.doc.unregisterPage(p)
}

// Num is the 1-based page number.
func (p *Page) Num() (int, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return p.num, nil
}

// size is the crop box size as displayed, after rotation.
func (p *Page) size() (float64, float64) {
	pg := p.model.page
	w, h := pg.CropBox.Width(), pg.CropBox.Height()
	if pg.Rotate == 90 || pg.Rotate == 270 {
		return h, w
	}
	return w, h
}

// Width is the displayed width in points.
func (p *Page) Width() (float64, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	w, _ := p.size()
	return w, nil
}

// Height is the displayed height in points.
func (p *Page) Height() (float64, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	_, h := p.size()
	return h, nil
}

func (p *Page) box(pick func() Rect) (Rect, error) {
	release, err := p.acquire()
	if err != nil {
		return Rect{}, err
	}
	defer release()
	return pick(), nil
}

func (p *Page) CropBox() (Rect, error)  { return p.box(func() Rect { return p.model.page.CropBox }) }
func (p *Page) MediaBox() (Rect, error) { return p.box(func() Rect { return p.model.page.MediaBox }) }
func (p *Page) BleedBox() (Rect, error) { return p.box(func() Rect { return p.model.page.BleedBox }) }
func (p *Page) TrimBox() (Rect, error)  { return p.box(func() Rect { return p.model.page.TrimBox }) }
func (p *Page) ArtBox() (Rect, error)   { return p.box(func() Rect { return p.model.page.ArtBox }) }

// Rotate is 0, 90, 180 or 270.
func (p *Page) Rotate() (int, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return p.model.page.Rotate, nil
}

// IsCropped reports an explicit crop box.
func (p *Page) IsCropped() (bool, error) {
	release, err := p.acquire()
	if err != nil {
		return false, err
	}
	defer release()
	return p.model.page.HasCropBox, nil
}

func (p *Page) NumAnnotations() (int, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	p.model.mu.RLock()
	defer p.model.mu.RUnlock()
	return len(p.model.annots), nil
}

// textPage returns the cached text layer, building it on first use.
func (p *Page) textPage(ctx context.Context, rawOrder bool) (*extractor.TextPage, error) {
	m := p.model
	m.textMu.Lock()
	defer m.textMu.Unlock()
	i := 0
	if rawOrder {
		i = 1
	}
	if tp := m.text[i]; tp != nil {
		return tp, nil
	}
	tp, err := extractor.Build(ctx, m.page, extractor.Config{
		Fonts:    p.doc.fonts,
		Logger:   p.doc.cfg.logger.With(observability.Int("page", p.num)),
		Limits:   p.doc.cfg.limits,
		RawOrder: rawOrder,
	})
	if err != nil {
		return nil, err
	}
	m.text[i] = tp
	return tp, nil
}

// FindText returns every occurrence of needle, ignoring case, top to
// bottom. Matches do not overlap.
func (p *Page) FindText(needle string) ([]FracRect, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	tp, err := p.textPage(context.Background(), false)
	if err != nil {
		return nil, err
	}
	boxes := tp.FindText(needle)
	out := make([]FracRect, 0, len(boxes))
	w, h := tp.Width, tp.Height
	for _, b := range boxes {
		out = append(out, FracRect{
			X1: b.X1 / w,
			Y1: (h - b.Y2) / h,
			X2: b.X2 / w,
			Y2: (h - b.Y1) / h,
		})
	}
	return out, nil
}

// WordList returns the words of the page in reading order, or in content
// stream order when rawOrder is set. Pages without a text layer are
// recognized with the configured OCR engine, if any.
func (p *Page) WordList(rawOrder bool) ([]Word, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	ctx := context.Background()
	tp, err := p.textPage(ctx, rawOrder)
	if err != nil {
		return nil, err
	}
	words := tp.Words()
	if len(words) == 0 && p.doc.cfg.ocr != nil {
		return p.ocrWords(ctx)
	}
	out := make([]Word, 0, len(words))
	w, h := tp.Width, tp.Height
	for _, wd := range words {
		y1, y2 := 1-wd.Box.Y1/h, 1-wd.Box.Y2/h
		if y1 > y2 {
			y1, y2 = y2, y1
		}
		out = append(out, Word{
			X1:   wd.Box.X1 / w,
			Y1:   y1,
			X2:   wd.Box.X2 / w,
			Y2:   y2,
			Text: wd.Text,
		})
	}
	return out, nil
}

func (p *Page) ocrWords(ctx context.Context) ([]Word, error) {
	m := p.model
	m.textMu.Lock()
	defer m.textMu.Unlock()
	if m.ocrRun {
		return m.ocr, nil
	}
	log := p.doc.cfg.logger.With(observability.Int("page", p.num))
	img, err := p.doc.cfg.rasterizer.Rasterize(ctx, render.Request{
		Page:        m.page,
		Number:      p.num,
		PPI:         ocrPPI,
		Annotations: []*raw.DictObj{},
		Source:      p.doc.serialize,
	})
	if err != nil {
		return nil, err
	}
	in, err := ocr.PageInput(p.num, img, ocrPPI, ocr.WithLanguages(p.doc.cfg.ocrLanguages...))
	if err != nil {
		return nil, err
	}
	res, err := p.doc.cfg.ocr.Recognize(ctx, in)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	out := []Word{}
	for _, w := range res.Words() {
		r := w.Bounds
		out = append(out, Word{
			X1:   r.X / iw,
			Y1:   1 - (r.Y+r.Height)/ih,
			X2:   (r.X + r.Width) / iw,
			Y2:   1 - r.Y/ih,
			Text: w.Text,
		})
	}
	log.Debug("page recognized", observability.Int("words", len(out)))
	m.ocr, m.ocrRun = out, true
	return out, nil
}
