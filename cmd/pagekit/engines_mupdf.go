//go:build mupdf

package main

import (
	"github.com/wudi/pagekit/render"
	"github.com/wudi/pagekit/render/mupdf"
)

func init() {
	rasterizers["mupdf"] = func() render.Rasterizer { return mupdf.New() }
}
