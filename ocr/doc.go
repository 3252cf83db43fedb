// Package ocr defines the contract between pagekit and OCR engines. Pages
// without a text layer are rendered to an image and handed to an Engine;
// the recognized words come back in image pixel coordinates.
package ocr
