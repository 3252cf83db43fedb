// Command pagekit inspects, searches, renders and highlights PDF pages.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/wudi/pagekit/document"
	"github.com/wudi/pagekit/extractor"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/ocr"
	"github.com/wudi/pagekit/render"
	"github.com/wudi/pagekit/workerpool"
)

// Engines linked in by build tags.
var (
	ocrEngines  = map[string]func() ocr.Engine{}
	rasterizers = map[string]func() render.Rasterizer{}
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"info":      {"print document and page properties", runInfo},
	"find":      {"locate text on pages", runFind},
	"words":     {"list words with their boxes", runWords},
	"render":    {"render pages to image files", runRender},
	"highlight": {"highlight every match of a text and save the document", runHighlight},
	"tokens":    {"dump the lexical tokens of a file", runTokens},
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "pagekit: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "pagekit: unknown command %q\n", args[0])
		usage(os.Stderr)
		return errUsage
	}
	return cmd.run(args[1:], stdout)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pagekit <command> [flags] <pdf> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

// common holds the flags every command accepts.
type common struct {
	fs            *flag.FlagSet
	password      string
	ownerPassword string
	verbose       bool
	page          int
	ocrEngine     string
	ocrLanguages  string
	renderer      string
	pool          *workerpool.Pool
}

func newCommon(name, operands string) *common {
	c := &common{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.fs.Usage = func() {
		fmt.Fprintf(c.fs.Output(), "Usage: pagekit %s [flags] %s\n", name, operands)
		c.fs.PrintDefaults()
	}
	c.fs.StringVar(&c.password, "password", "", "User password for encrypted PDFs")
	c.fs.StringVar(&c.ownerPassword, "owner-password", "", "Owner password for encrypted PDFs")
	c.fs.BoolVar(&c.verbose, "v", false, "Log debug messages to stderr")
	c.fs.IntVar(&c.page, "page", 0, "1-based page number; 0 selects every page")
	c.fs.StringVar(&c.ocrEngine, "ocr", "", "OCR engine for pages without text"+engineList(ocrEngines))
	c.fs.StringVar(&c.ocrLanguages, "lang", "eng", "Comma separated OCR languages")
	c.fs.StringVar(&c.renderer, "renderer", "", "Rasterizer"+engineList(rasterizers))
	return c
}

func engineList[T any](m map[string]T) string {
	if len(m) == 0 {
		return " (none built in)"
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return " (" + strings.Join(names, ", ") + ")"
}

// parse parses args and checks the operand count.
func (c *common) parse(args []string, operands int) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.fs.NArg() != operands {
		c.fs.Usage()
		return errUsage
	}
	return nil
}

func (c *common) logger() observability.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return observability.NewSlogLogger(slog.New(h))
}

func (c *common) open(path string) (*document.Document, error) {
	opts := []document.Option{
		document.WithPasswords(c.ownerPassword, c.password),
		document.WithLogger(c.logger()),
	}
	c.pool = workerpool.New(workerpool.Config{Workers: runtime.NumCPU()})
	opts = append(opts, document.WithPool(c.pool))
	if c.ocrEngine != "" {
		newEngine, ok := ocrEngines[c.ocrEngine]
		if !ok {
			return nil, fmt.Errorf("OCR engine %q is not built in", c.ocrEngine)
		}
		opts = append(opts, document.WithOCR(newEngine(), splitList(c.ocrLanguages)...))
	}
	if c.renderer != "" {
		newRasterizer, ok := rasterizers[c.renderer]
		if !ok {
			return nil, fmt.Errorf("renderer %q is not built in", c.renderer)
		}
		opts = append(opts, document.WithRasterizer(newRasterizer()))
	}
	doc, err := document.Open(path, opts...)
	if err != nil {
		c.pool.Close()
		return nil, err
	}
	return doc, nil
}

// close releases doc and the render workers.
func (c *common) close(doc *document.Document) {
	doc.Close()
	if c.pool != nil {
		c.pool.Close()
	}
}

// pages returns the selected page numbers.
func (c *common) pages(doc *document.Document) ([]int, error) {
	n, err := doc.PageCount()
	if err != nil {
		return nil, err
	}
	if c.page != 0 {
		if c.page < 1 || c.page > n {
			return nil, fmt.Errorf("page %d out of range 1-%d", c.page, n)
		}
		return []int{c.page}, nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out, nil
}

// eachPage opens every selected page in turn.
func (c *common) eachPage(doc *document.Document, fn func(*document.Page) error) error {
	nums, err := c.pages(doc)
	if err != nil {
		return err
	}
	for _, n := range nums {
		p, err := doc.Page(n)
		if err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
		err = fn(p)
		p.Close()
		if err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func emit(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

type box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func boxOf(r document.Rect) box { return box{r.X1, r.Y1, r.X2, r.Y2} }

type pageInfo struct {
	Num         int     `json:"num"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Rotate      int     `json:"rotate"`
	Cropped     bool    `json:"isCropped"`
	CropBox     box     `json:"cropBox"`
	MediaBox    box     `json:"mediaBox"`
	Annotations int     `json:"numAnnots"`
}

type docInfo struct {
	FileName   string     `json:"fileName,omitempty"`
	PageCount  int        `json:"pageCount"`
	Version    string     `json:"pdfVersion"`
	Linearized bool       `json:"isLinearized"`
	Encrypted  bool       `json:"isEncrypted"`
	Metadata   metadata   `json:"metadata"`
	PageLabels []string   `json:"pageLabels,omitempty"`
	Outline    []bookmark `json:"outline,omitempty"`
	Fonts      []fontInfo `json:"fonts,omitempty"`
	Pages      []pageInfo `json:"pages"`
}

type metadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Lang     string `json:"lang,omitempty"`
	Tagged   bool   `json:"isTagged"`
}

type bookmark struct {
	Title    string     `json:"title"`
	Page     int        `json:"page,omitempty"`
	Children []bookmark `json:"children,omitempty"`
}

type fontInfo struct {
	Name         string `json:"name"`
	BaseFont     string `json:"baseFont"`
	Subtype      string `json:"subtype"`
	Encoding     string `json:"encoding,omitempty"`
	Embedded     bool   `json:"embedded"`
	HasToUnicode bool   `json:"hasToUnicode"`
	Pages        []int  `json:"pages"`
}

func bookmarksOf(list []extractor.Bookmark) []bookmark {
	if len(list) == 0 {
		return nil
	}
	out := make([]bookmark, len(list))
	for i, b := range list {
		out[i] = bookmark{Title: b.Title, Page: b.Page, Children: bookmarksOf(b.Children)}
	}
	return out
}

func describeDetails(info *docInfo, d *document.Details) {
	m := d.Metadata
	info.Metadata = metadata{
		Title: m.Title, Author: m.Author, Subject: m.Subject, Keywords: m.Keywords,
		Creator: m.Creator, Producer: m.Producer, Lang: m.Lang, Tagged: m.Marked,
	}
	info.PageLabels = d.PageLabels
	info.Outline = bookmarksOf(d.Outline)
	for _, f := range d.Fonts {
		info.Fonts = append(info.Fonts, fontInfo{
			Name:         f.ResourceName,
			BaseFont:     f.BaseFont,
			Subtype:      f.Subtype,
			Encoding:     f.Encoding,
			Embedded:     f.Embedded,
			HasToUnicode: f.HasToUnicode,
			Pages:        f.Pages,
		})
	}
}

func runInfo(args []string, stdout io.Writer) error {
	c := newCommon("info", "<pdf>")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	doc, err := c.open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer c.close(doc)

	var info docInfo
	info.FileName, _, _ = doc.FileName()
	if info.PageCount, err = doc.PageCount(); err != nil {
		return err
	}
	if info.Version, err = doc.PDFVersion(); err != nil {
		return err
	}
	if info.Linearized, err = doc.IsLinearized(); err != nil {
		return err
	}
	if info.Encrypted, err = doc.IsEncrypted(); err != nil {
		return err
	}
	details, err := doc.Details(context.Background())
	if err != nil {
		return err
	}
	describeDetails(&info, details)
	err = c.eachPage(doc, func(p *document.Page) error {
		pi, err := describePage(p)
		if err != nil {
			return err
		}
		info.Pages = append(info.Pages, pi)
		return nil
	})
	if err != nil {
		return err
	}
	return emit(stdout, info)
}

func describePage(p *document.Page) (pageInfo, error) {
	var (
		pi  pageInfo
		err error
	)
	pi.Num, _ = p.Num()
	if pi.Width, err = p.Width(); err != nil {
		return pi, err
	}
	pi.Height, _ = p.Height()
	pi.Rotate, _ = p.Rotate()
	pi.Cropped, _ = p.IsCropped()
	crop, _ := p.CropBox()
	media, _ := p.MediaBox()
	pi.CropBox, pi.MediaBox = boxOf(crop), boxOf(media)
	pi.Annotations, _ = p.NumAnnotations()
	return pi, nil
}

// rel is a fractional rectangle with a lower-left origin.
type rel struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type word struct {
	rel
	Text string `json:"text"`
}

func rels(rs []document.FracRect) []rel {
	out := make([]rel, len(rs))
	for i, r := range rs {
		out[i] = rel{r.X1, r.Y1, r.X2, r.Y2}
	}
	return out
}

type pageMatches struct {
	Page    int   `json:"page"`
	Matches []rel `json:"matches"`
}

func runFind(args []string, stdout io.Writer) error {
	c := newCommon("find", "<pdf> <text>")
	if err := c.parse(args, 2); err != nil {
		return err
	}
	doc, err := c.open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer c.close(doc)

	out := []pageMatches{}
	err = c.eachPage(doc, func(p *document.Page) error {
		rs, err := p.FindText(c.fs.Arg(1))
		if err != nil || len(rs) == 0 {
			return err
		}
		n, _ := p.Num()
		out = append(out, pageMatches{Page: n, Matches: rels(rs)})
		return nil
	})
	if err != nil {
		return err
	}
	return emit(stdout, out)
}

type pageWords struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Words  []word  `json:"words"`
}

func runWords(args []string, stdout io.Writer) error {
	c := newCommon("words", "<pdf>")
	rawOrder := c.fs.Bool("raw", false, "Keep content stream order")
	bbox := c.fs.Bool("bbox", false, "Write XHTML with word boxes in points")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	doc, err := c.open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer c.close(doc)

	out := []pageWords{}
	err = c.eachPage(doc, func(p *document.Page) error {
		ws, err := p.WordList(*rawOrder)
		if err != nil {
			return err
		}
		pw := pageWords{Words: make([]word, len(ws))}
		for i, w := range ws {
			pw.Words[i] = word{rel{w.X1, w.Y1, w.X2, w.Y2}, w.Text}
		}
		pw.Page, _ = p.Num()
		pw.Width, _ = p.Width()
		pw.Height, _ = p.Height()
		out = append(out, pw)
		return nil
	})
	if err != nil {
		return err
	}
	if *bbox {
		return writeBBox(stdout, out)
	}
	return emit(stdout, out)
}

func runRender(args []string, stdout io.Writer) error {
	c := newCommon("render", "<pdf>")
	format := c.fs.String("format", "png", "Image format: png, jpeg or tiff")
	ppi := c.fs.Float64("ppi", 150, "Resolution in pixels per inch")
	out := c.fs.String("out", "page-%d", "Output path; %d is replaced by the page number and the format extension is added when missing")
	quality := c.fs.Int("quality", -1, "JPEG quality 0-100")
	progressive := c.fs.Bool("progressive", false, "Progressive JPEG")
	compression := c.fs.String("compression", "", "TIFF compression")
	slice := c.fs.String("slice", "", "Fractional slice x,y,w,h with a lower-left origin")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	opts := &document.RenderOptions{Compression: *compression, Progressive: *progressive}
	if *quality >= 0 {
		opts.Quality = quality
	}
	if *slice != "" {
		s, err := parseSlice(*slice)
		if err != nil {
			return err
		}
		opts.Slice = &s
	}

	doc, err := c.open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer c.close(doc)
	nums, err := c.pages(doc)
	if err != nil {
		return err
	}

	ctx := context.Background()
	futures := make([]*workerpool.Future[*document.Result], 0, len(nums))
	for _, n := range nums {
		p, err := doc.Page(n)
		if err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
		defer p.Close()
		futures = append(futures, p.RenderToFileAsync(ctx, outputPath(*out, n, *format), *format, *ppi, opts))
	}
	type rendered struct {
		Page int    `json:"page"`
		Path string `json:"path"`
	}
	var results []rendered
	for i, f := range futures {
		res, err := f.Wait(ctx)
		if err != nil {
			return fmt.Errorf("page %d: %w", nums[i], err)
		}
		results = append(results, rendered{nums[i], res.Path})
	}
	return emit(stdout, results)
}

func outputPath(pattern string, page int, format string) string {
	p := pattern
	if strings.Contains(p, "%d") {
		p = fmt.Sprintf(p, page)
	}
	if filepath.Ext(p) == "" {
		p += "." + strings.ToLower(format)
	}
	return p
}

func parseSlice(s string) (document.Slice, error) {
	var sl document.Slice
	if _, err := fmt.Sscanf(s, "%g,%g,%g,%g", &sl.X, &sl.Y, &sl.W, &sl.H); err != nil {
		return sl, fmt.Errorf("slice %q: want x,y,w,h", s)
	}
	return sl, nil
}

func runHighlight(args []string, stdout io.Writer) error {
	c := newCommon("highlight", "<pdf> <text>")
	out := c.fs.String("out", "", "Output PDF (required)")
	if err := c.parse(args, 2); err != nil {
		return err
	}
	if *out == "" {
		c.fs.Usage()
		return errUsage
	}
	doc, err := c.open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer c.close(doc)

	found := []pageMatches{}
	err = c.eachPage(doc, func(p *document.Page) error {
		rs, err := p.FindText(c.fs.Arg(1))
		if err != nil || len(rs) == 0 {
			return err
		}
		if err := p.AddHighlights(rs...); err != nil {
			return err
		}
		n, _ := p.Num()
		found = append(found, pageMatches{Page: n, Matches: rels(rs)})
		return nil
	})
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := doc.Save(f); err != nil {
		f.Close()
		os.Remove(*out)
		return fmt.Errorf("save: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return emit(stdout, found)
}
