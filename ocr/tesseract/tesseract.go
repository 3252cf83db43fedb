// Package tesseract is an ocr.Engine backed by the Tesseract library
// through gosseract.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"

	"github.com/wudi/pagekit/ocr"
)

// Engine implements ocr.BatchEngine. Each image gets its own client.
type Engine struct {
	languages []string
	newClient func() *gosseract.Client
}

// New returns an engine using languages when an input names none.
func New(languages ...string) *Engine {
	return &Engine{languages: languages, newClient: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.newClient()
	defer c.Close()
	if err := e.configure(c, &in); err != nil {
		return ocr.Result{}, err
	}
	return read(c, in)
}

// RecognizeBatch processes inputs in order and stops at the first failure.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) configure(c *gosseract.Client, in *ocr.Input) error {
	if len(in.Languages) == 0 {
		in.Languages = e.languages
	}
	data, err := crop(in.Image, in.Region)
	if err != nil {
		return err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	vars := map[string]string{}
	if in.DPI > 0 {
		vars["user_defined_dpi"] = strconv.Itoa(in.DPI)
	}
	for k, v := range in.Metadata {
		vars[k] = v
	}
	for k, v := range vars {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

// read collects words and groups them under the text line whose box holds
// the word centre. Words outside every line get a line of their own.
func read(c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	words, err := boxes(c, gosseract.RIL_WORD)
	if err != nil {
		return ocr.Result{}, err
	}
	lineBoxes, err := boxes(c, gosseract.RIL_TEXTLINE)
	if err != nil {
		return ocr.Result{}, err
	}
	offset := in.Region
	lines := make([]ocr.TextLine, len(lineBoxes))
	for i, lb := range lineBoxes {
		lines[i] = ocr.TextLine{Text: strings.TrimSpace(lb.Word), Bounds: region(lb.Box, offset)}
	}
	for _, wb := range words {
		w := ocr.TextWord{Text: wb.Word, Bounds: region(wb.Box, offset), Confidence: wb.Confidence / 100}
		centre := image.Pt((wb.Box.Min.X+wb.Box.Max.X)/2, (wb.Box.Min.Y+wb.Box.Max.Y)/2)
		placed := false
		for i, lb := range lineBoxes {
			if centre.In(lb.Box) {
				lines[i].Words = append(lines[i].Words, w)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, ocr.TextLine{Text: w.Text, Bounds: w.Bounds, Words: []ocr.TextWord{w}})
		}
	}

	block := ocr.TextBlock{Text: strings.TrimSpace(text)}
	var sum float64
	n := 0
	for _, l := range lines {
		if len(l.Words) == 0 {
			continue
		}
		var ls float64
		for _, w := range l.Words {
			ls += w.Confidence
		}
		l.Confidence = ls / float64(len(l.Words))
		sum += ls
		n += len(l.Words)
		block.Lines = append(block.Lines, l)
		block.Bounds = union(block.Bounds, l.Bounds)
	}
	if n > 0 {
		block.Confidence = sum / float64(n)
	}
	res := ocr.Result{InputID: in.ID, PlainText: block.Text}
	if len(in.Languages) > 0 {
		res.Language = in.Languages[0]
	}
	if len(block.Lines) > 0 {
		res.Blocks = []ocr.TextBlock{block}
	}
	return res, nil
}

func boxes(c *gosseract.Client, level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	bs, err := c.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	return bs, nil
}

// region converts a box on the cropped image back to page image pixels.
func region(r image.Rectangle, offset *ocr.Region) ocr.Region {
	out := ocr.Region{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
	if offset != nil {
		out.X += math.Round(offset.X)
		out.Y += math.Round(offset.Y)
	}
	return out
}

func union(a, b ocr.Region) ocr.Region {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	x1, y1 := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
	x2 := math.Max(a.X+a.Width, b.X+b.Width)
	y2 := math.Max(a.Y+a.Height, b.Y+b.Height)
	return ocr.Region{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// crop returns data re-encoded to the part of the image inside r.
func crop(data []byte, r *ocr.Region) ([]byte, error) {
	if r == nil || r.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, errors.New("region outside image bounds")
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(dst, image.Point{}, img, rect, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
