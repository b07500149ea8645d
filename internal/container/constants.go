// Package container scans the GIF87a/GIF89a block structure: header, logical
// screen descriptor, color tables, extensions and image descriptors.
//
// It does not decompress pixel data. Each image block is reported with the
// byte span of its LZW sub-blocks so that frames can be decoded lazily.
package container

import "errors"

// Signatures.
const (
	Signature87a = "GIF87a"
	Signature89a = "GIF89a"
)

// Block introducers and extension labels.
const (
	IntroExtension       = 0x21
	IntroImageDescriptor = 0x2C
	IntroTrailer         = 0x3B

	LabelPlainText      = 0x01
	LabelGraphicControl = 0xF9
	LabelComment        = 0xFE
	LabelApplication    = 0xFF
)

// Fixed sizes.
const (
	HeaderSize           = 6
	ScreenDescriptorSize = 7
	ImageDescriptorSize  = 9
	GraphicControlSize   = 4
)

// Packed-field masks.
const (
	flagColorTable = 0x80 // global or local color table present
	flagInterlace  = 0x40 // image descriptor only
	maskTableSize  = 0x07

	gceTransparent = 0x01
	gceDisposal    = 0x1C
	gceDisposalPos = 2
)

// LZW minimum code size bounds accepted by the decoder.
const (
	MinLitWidth = 2
	MaxLitWidth = 8
)

// DefaultMaxFrames caps the number of image blocks to prevent memory
// exhaustion from malicious inputs.
const DefaultMaxFrames = 10000

// Common errors.
var (
	ErrSignature     = errors.New("container: not a GIF file")
	ErrTruncated     = errors.New("container: truncated data")
	ErrUnknownBlock  = errors.New("container: unknown block type")
	ErrInvalidBlock  = errors.New("container: invalid block")
	ErrNoImage       = errors.New("container: no image data found")
	ErrTooManyFrames = errors.New("container: too many frames")
	ErrLitWidth      = errors.New("container: LZW minimum code size out of range")
)
