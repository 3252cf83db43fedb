//go:build tesseract

package main

import (
	"github.com/wudi/pagekit/ocr"
	"github.com/wudi/pagekit/ocr/tesseract"
)

func init() {
	ocrEngines["tesseract"] = func() ocr.Engine { return tesseract.New() }
}
