package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/wudi/pagekit/parser"
	"github.com/wudi/pagekit/security"
)

var (
	// ErrDocumentClosed is returned by every operation on a closed handle.
	ErrDocumentClosed = errors.New("Document closed. You must delete this page")
	// ErrInvalidArgument matches every *ArgError.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRender matches every *RenderError.
	ErrRender = errors.New("render failed")
	// ErrPageUnavailable is returned when a page in range cannot be loaded.
	ErrPageUnavailable = errors.New(msgOpenPage)
	// ErrReadOnly is returned by Save when the document permissions forbid
	// changing annotations.
	ErrReadOnly = errors.New("document permissions forbid annotation changes")
)

// OpenCode classifies open failures.
type OpenCode int

const (
	OpenOK OpenCode = iota
	OpenFileError
	OpenBadCatalog
	OpenDamaged
	OpenEncrypted
	OpenHighlightFile
	OpenBadPrinter
	OpenPrinting
	OpenPermission
	OpenBadPageNum
	OpenFileIO
	OpenOther
)

// OpenError is returned when a document cannot be opened.
type OpenError struct {
	Code OpenCode
	// Errno is the operating system error number for OpenFileError.
	Errno int
	Err   error
}

func (e *OpenError) Error() string {
	return "Couldn't open file - " + e.category() + "."
}

func (e *OpenError) category() string {
	switch e.Code {
	case OpenFileError:
		return fmt.Sprintf("fopen error. Errno: %d", e.Errno)
	case OpenBadCatalog:
		return "bad catalog"
	case OpenDamaged:
		return "damaged"
	case OpenEncrypted:
		return "encrypted"
	case OpenHighlightFile:
		return "highlight file"
	case OpenBadPrinter:
		return "bad printer"
	case OpenPrinting:
		return "printing error"
	case OpenPermission:
		return "permission error"
	case OpenBadPageNum:
		return "bad page num"
	case OpenFileIO:
		return "file IO error"
	}
	return "other error"
}

func (e *OpenError) Unwrap() error { return e.Err }

// classifyOpen maps a parser or file system failure to an OpenError.
func classifyOpen(err error) *OpenError {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe
	}
	code := OpenOther
	switch {
	case errors.Is(err, parser.ErrEncrypted), errors.Is(err, security.ErrInvalidPassword),
		errors.Is(err, security.ErrUnsupportedEncryption):
		code = OpenEncrypted
	case errors.Is(err, parser.ErrBadCatalog):
		code = OpenBadCatalog
	case errors.Is(err, parser.ErrDamaged):
		code = OpenDamaged
	}
	return &OpenError{Code: code, Err: err}
}

// fileError converts a failure to read path.
func fileError(err error) *OpenError {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &OpenError{Code: OpenFileError, Errno: int(errno), Err: err}
	}
	var pe *fs.PathError
	if errors.As(err, &pe) || errors.Is(err, os.ErrNotExist) {
		return &OpenError{Code: OpenFileError, Err: err}
	}
	return &OpenError{Code: OpenFileIO, Err: err}
}

// ArgError reports a rejected argument. Message is the text shown to the
// caller.
type ArgError struct {
	Message string
}

func (e *ArgError) Error() string { return e.Message }

func (e *ArgError) Is(target error) bool { return target == ErrInvalidArgument }

func argError(msg string) error { return &ArgError{Message: msg} }

// RenderError reports a failure while producing or storing an image.
type RenderError struct {
	Message string
	Err     error
}

func (e *RenderError) Error() string { return e.Message }

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

func renderError(msg string, err error) error {
	return &RenderError{Message: msg, Err: err}
}

// Validation and execution messages.
const (
	msgPageBounds       = "Page number out of bounds."
	msgOpenPage         = "Can't open page."
	msgQuadDefinition   = "Invalid rectangle definition for annotation quadrilateral"
	msgQuadValues       = "Wrong values for rectangle corners definition"
	msgPathType         = "'path' must be an instance of string"
	msgPathEmpty        = "'path' can't be empty"
	msgMethodType       = "'method' must be an instance of String"
	msgMethodUnknown    = "Unsupported compression method"
	msgPPIType          = "'PPI' must be an instance of number"
	msgPPIRange         = "'PPI' value must be greater then 0"
	msgOpenStream       = "Could not open output stream"
	msgOptionsType      = "'options' must be an instance of Object"
	msgCompressionEmpty = "'compression' option value could not be an empty string"
	msgCompressionType  = "'compression' option must be an instance of string"
	msgQualityType      = "'quality' option value must be 0 - 100 interval integer"
	msgQualityRange     = "'quality' not in 0 - 100 interval"
	msgProgressiveType  = "'progressive' option value must be a boolean value"
	msgSliceType        = "'slice' option value must be an instance of Object"
	msgSliceShape       = "Slice must be an object: {x: Number, y: Number, w: Number, h: Number}"
	msgSliceRange       = "Slice values must be 0 - 1 interval numbers"
	msgTooBig           = "Result image is too big"
	msgReadTemp         = "Can't read temporary file"
)
