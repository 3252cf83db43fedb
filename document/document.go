// Package document provides handles over parsed PDF files and their pages.
//
// A Document owns the parsed file. Pages opened from it register with the
// document and become unusable once it is closed; every later call on them
// fails with ErrDocumentClosed. Pages render into PNG, JPEG or TIFF, either
// inline or on a worker pool, and carry highlight annotations that are
// written back through an incremental update by Save.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/wudi/pagekit/extractor"
	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/parser"
	"github.com/wudi/pagekit/recovery"
	"github.com/wudi/pagekit/render"
	"github.com/wudi/pagekit/workerpool"
	"github.com/wudi/pagekit/writer"
)

// Document is an open PDF file. It is safe for concurrent use.
type Document struct {
	mu       sync.RWMutex
	cfg      config
	pdf      *parser.Document
	fonts    *fonts.Cache
	fileName string
	hasFile  bool
	closed   bool

	pagesMu sync.Mutex
	models  map[int]*pageModel
	pages   map[*Page]struct{}
}

// pageModel is the document side state of one page, shared by every handle
// opened on it.
type pageModel struct {
	num  int
	page *parser.Page

	mu     sync.RWMutex
	annots []annotation
	dirty  bool

	textMu sync.Mutex
	text   [2]*extractor.TextPage
	ocr    []Word
	ocrRun bool
}

type annotation struct {
	// ref is zero for direct dictionaries and for annotations added since
	// the document was opened.
	ref   raw.ObjectRef
	dict  *raw.DictObj
	added bool
}

func (a annotation) subtype() string {
	v, _ := a.dict.Get("Subtype")
	s, _ := raw.AsName(v)
	return s
}

// Open reads and parses the file at source, a path or a file:// URI.
func Open(source string, opts ...Option) (*Document, error) {
	path := source
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, &OpenError{Code: OpenFileError, Err: err}
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(err)
	}
	d, err := open(data, opts)
	if err != nil {
		return nil, err
	}
	d.fileName, d.hasFile = path, true
	return d, nil
}

// OpenBytes parses an in-memory file. data is copied.
func OpenBytes(data []byte, opts ...Option) (*Document, error) {
	if len(data) == 0 {
		return nil, &OpenError{Code: OpenDamaged, Err: parser.ErrDamaged}
	}
	return open(bytes.Clone(data), opts)
}

func open(data []byte, opts []Option) (*Document, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	lenient, _ := cfg.recovery.(*recovery.Lenient)
	if cfg.recovery == nil {
		lenient = recovery.NewLenientStrategy()
		lenient.Logger = cfg.logger
		cfg.recovery = lenient
	}
	ctx, span := cfg.tracer.StartSpan(context.Background(), observability.SpanOpen)
	defer span.Finish()

	pdf, err := parser.Open(ctx, data, parser.Config{
		Recovery:      cfg.recovery,
		Limits:        cfg.limits,
		Logger:        cfg.logger,
		OwnerPassword: cfg.ownerPassword,
		UserPassword:  cfg.userPassword,
	})
	if err != nil {
		oe := classifyOpen(err)
		span.SetError(oe)
		cfg.logger.Debug("open failed", observability.Error("error", err))
		return nil, oe
	}
	span.SetTag(observability.TagPages, pdf.NumPages())

	d := &Document{
		cfg:    cfg,
		pdf:    pdf,
		fonts:  fonts.NewCache(pdf, cfg.logger),
		models: make(map[int]*pageModel),
		pages:  make(map[*Page]struct{}),
	}
	if d.cfg.rasterizer == nil {
		d.cfg.rasterizer = render.New(render.Config{
			Fonts:  d.fonts,
			Logger: cfg.logger,
			Limits: cfg.limits,
		})
	}
	if d.cfg.pool == nil {
		d.cfg.pool = workerpool.Default()
	}
	major, minor := pdf.Version()
	cfg.logger.Debug("document opened",
		observability.Int("pages", pdf.NumPages()),
		observability.String("version", fmt.Sprintf("%d.%d", major, minor)),
		observability.Bool("encrypted", pdf.IsEncrypted()))
	if lenient != nil {
		if damage := lenient.Damage(); damage != nil {
			cfg.logger.Info("document repaired", observability.String("damage", strings.Join(damage, ",")))
		}
	}
	return d, nil
}

// PageCount is the number of pages in the page tree.
func (d *Document) PageCount() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrDocumentClosed
	}
	return d.pdf.NumPages(), nil
}

func (d *Document) PDFMajorVersion() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrDocumentClosed
	}
	major, _ := d.pdf.Version()
	return major, nil
}

func (d *Document) PDFMinorVersion() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrDocumentClosed
	}
	_, minor := d.pdf.Version()
	return minor, nil
}

// PDFVersion formats the header version as "PDF-<major>.<minor>".
func (d *Document) PDFVersion() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrDocumentClosed
	}
	major, minor := d.pdf.Version()
	return fmt.Sprintf("PDF-%d.%d", major, minor), nil
}

func (d *Document) IsLinearized() (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, ErrDocumentClosed
	}
	return d.pdf.IsLinearized(), nil
}

func (d *Document) IsEncrypted() (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, ErrDocumentClosed
	}
	return d.pdf.IsEncrypted(), nil
}

// FileName returns the path the document was read from. The boolean is
// false for documents opened from memory.
func (d *Document) FileName() (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", false, ErrDocumentClosed
	}
	return d.fileName, d.hasFile, nil
}

// Details is the document level information gathered by Details.
type Details struct {
	Metadata   extractor.Metadata
	PageLabels []string
	Outline    []extractor.Bookmark
	Fonts      []extractor.FontInfo
}

// Details reads the info dictionary, page labels, outline and the fonts
// referenced from page resources.
func (d *Document) Details(ctx context.Context) (*Details, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	ext, err := extractor.New(d.pdf)
	if err != nil {
		return nil, fmt.Errorf("document details: %w", err)
	}
	return &Details{
		Metadata:   ext.Metadata(ctx),
		PageLabels: ext.PageLabels(ctx),
		Outline:    ext.Outline(ctx),
		Fonts:      ext.Fonts(ctx),
	}, nil
}

// IsOK reports whether the document is open.
func (d *Document) IsOK() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Page opens page n, counting from 1.
func (d *Document) Page(n int) (*Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if n < 1 || n > d.pdf.NumPages() {
		return nil, argError(msgPageBounds)
	}
	m, err := d.model(n)
	if err != nil {
		return nil, err
	}
	p := &Page{doc: d, num: n, model: m}
	d.registerPage(p)
	return p, nil
}

// model returns the shared state of page n, loading it on first use. The
// caller holds d.mu.
func (d *Document) model(n int) (*pageModel, error) {
	d.pagesMu.Lock()
	defer d.pagesMu.Unlock()
	if m, ok := d.models[n]; ok {
		return m, nil
	}
	ctx := context.Background()
	pg, err := d.pdf.Page(ctx, n)
	if err != nil {
		d.cfg.logger.Warn("page unavailable", observability.Int("page", n), observability.Error("error", err))
		return nil, fmt.Errorf("%w: %v", ErrPageUnavailable, err)
	}
	m := &pageModel{num: n, page: pg}
	for _, a := range pg.Annotations(ctx) {
		m.annots = append(m.annots, annotation{ref: a.Ref, dict: a.Dict})
	}
	d.models[n] = m
	return m, nil
}

func (d *Document) registerPage(p *Page) {
	d.pagesMu.Lock()
	defer d.pagesMu.Unlock()
	if d.pages != nil {
		d.pages[p] = struct{}{}
	}
}

func (d *Document) unregisterPage(p *Page) {
	d.pagesMu.Lock()
	defer d.pagesMu.Unlock()
	delete(d.pages, p)
}

// Close marks every open page closed and releases the parsed file. Closing
// twice is a no-op.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.pagesMu.Lock()
	for p := range d.pages {
		p.closed.Store(true)
	}
	open := len(d.pages)
	d.pages, d.models = nil, nil
	d.pagesMu.Unlock()

	d.closed = true
	d.pdf, d.fonts = nil, nil
	d.cfg.logger.Debug("document closed", observability.Int("open_pages", open))
	return nil
}

// Save writes the file with an incremental update carrying the current
// annotation lists. An unchanged document is written as read.
func (d *Document) Save(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDocumentClosed
	}
	inc, err := d.update()
	if err != nil {
		return err
	}
	if inc == nil {
		_, err = w.Write(d.pdf.Data())
		return err
	}
	_, err = inc.WriteTo(w)
	return err
}

// Bytes returns the current serialized document. The result must not be
// modified.
func (d *Document) Bytes() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	return d.serialize()
}

// serialize is Bytes for callers holding d.mu.
func (d *Document) serialize() ([]byte, error) {
	inc, err := d.update()
	if err != nil || inc == nil {
		return d.pdf.Data(), err
	}
	var buf bytes.Buffer
	if _, err := inc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// update builds the incremental section for pages whose annotations
// changed, or returns nil when nothing did.
func (d *Document) update() (*writer.Incremental, error) {
	d.pagesMu.Lock()
	var dirty []*pageModel
	for _, m := range d.models {
		m.mu.RLock()
		if m.dirty {
			dirty = append(dirty, m)
		}
		m.mu.RUnlock()
	}
	d.pagesMu.Unlock()
	if len(dirty) == 0 {
		return nil, nil
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].num < dirty[j].num })

	if d.pdf.IsEncrypted() {
		perm := d.pdf.Permissions()
		if !perm.Modify && !perm.ModifyAnnotations {
			return nil, ErrReadOnly
		}
	}
	b := (&writer.IncrementalBuilder{}).
		WithBase(d.pdf.Data()).
		WithTrailer(d.pdf.Trailer()).
		WithMaxObjectNumber(d.pdf.MaxObjectNumber()).
		WithSecurity(d.pdf.Security()).
		WithLogger(d.cfg.logger)
	if d.pdf.XRefType() == "repaired" {
		b = b.WithoutPrev()
	}
	inc, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	for _, m := range dirty {
		m.mu.RLock()
		arr := raw.NewArray()
		for _, a := range m.annots {
			switch {
			case a.added:
				dict := a.dict.Clone()
				dict.Set("P", raw.RefObj{R: m.page.Ref})
				arr.Append(raw.RefObj{R: inc.Add(dict)})
			case a.ref != (raw.ObjectRef{}):
				arr.Append(raw.RefObj{R: a.ref})
			default:
				arr.Append(a.dict)
			}
		}
		m.mu.RUnlock()
		page := m.page.Dict.Clone()
		if arr.Len() == 0 {
			page.Delete("Annots")
		} else {
			page.Set("Annots", arr)
		}
		inc.Set(m.page.Ref, page)
	}
	d.cfg.logger.Debug("incremental update built",
		observability.Int("pages", len(dirty)),
		observability.Int("objects", inc.Len()))
	return inc, nil
}
