package container

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// Screen holds the logical screen descriptor and global color table.
type Screen struct {
	Version         string
	Width           int
	Height          int
	BackgroundIndex byte
	AspectRatio     byte
	GlobalPalette   color.Palette // nil if absent
}

// ImageBlock holds per-frame metadata extracted from an image descriptor and
// the graphic control extension that preceded it.
type ImageBlock struct {
	Bounds       image.Rectangle // declared placement, may exceed the screen
	Interlaced   bool
	LocalPalette color.Palette // nil if absent

	// From the graphic control extension (zero values when absent).
	DelayTime      int  // hundredths of a second
	DisposalMethod byte // raw 3-bit value
	HasTransparent bool
	TransparentIdx byte

	LitWidth int    // LZW minimum code size
	Data     []byte // sub-blocks including the 0 terminator
}

// Parser performs a single pass over a complete GIF byte slice.
type Parser struct {
	screen    Screen
	images    []ImageBlock
	comments  [][]byte
	loopCount int

	maxFrames int
}

// NewParser parses data and returns a Parser. maxFrames <= 0 selects
// DefaultMaxFrames.
func NewParser(data []byte, maxFrames int) (*Parser, error) {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	p := &Parser{loopCount: -1, maxFrames: maxFrames}
	if err := p.parse(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Screen returns the logical screen descriptor.
func (p *Parser) Screen() Screen { return p.screen }

// Images returns all image blocks in container order.
func (p *Parser) Images() []ImageBlock { return p.images }

// Comments returns the raw payload of every comment extension.
func (p *Parser) Comments() [][]byte { return p.comments }

// LoopCount returns the NETSCAPE2.0 loop count, or -1 when the extension is
// absent. Zero means loop forever.
func (p *Parser) LoopCount() int { return p.loopCount }

func (p *Parser) parse(data []byte) error {
	pos, err := p.parseScreen(data)
	if err != nil {
		return err
	}

	var gce graphicControl
	for {
		if pos >= len(data) {
			// Missing trailer is tolerated once a frame was seen.
			if len(p.images) == 0 {
				return ErrTruncated
			}
			return nil
		}
		intro := data[pos]
		pos++

		switch intro {
		case IntroExtension:
			if pos >= len(data) {
				return ErrTruncated
			}
			label := data[pos]
			pos++
			pos, err = p.parseExtension(data, pos, label, &gce)
			if err != nil {
				return err
			}

		case IntroImageDescriptor:
			if len(p.images) >= p.maxFrames {
				return ErrTooManyFrames
			}
			var img ImageBlock
			img, pos, err = parseImage(data, pos)
			if err != nil {
				return fmt.Errorf("frame %d: %w", len(p.images), err)
			}
			gce.applyTo(&img)
			gce = graphicControl{}
			p.images = append(p.images, img)

		case IntroTrailer:
			if len(p.images) == 0 {
				return ErrNoImage
			}
			return nil

		default:
			return fmt.Errorf("%w: 0x%02x at offset %d", ErrUnknownBlock, intro, pos-1)
		}
	}
}

func (p *Parser) parseScreen(data []byte) (int, error) {
	if len(data) < HeaderSize+ScreenDescriptorSize {
		if len(data) >= HeaderSize && !validSignature(data) {
			return 0, ErrSignature
		}
		return 0, ErrTruncated
	}
	if !validSignature(data) {
		return 0, ErrSignature
	}
	sd := data[HeaderSize : HeaderSize+ScreenDescriptorSize]
	p.screen = Screen{
		Version:         string(data[:HeaderSize]),
		Width:           int(binary.LittleEndian.Uint16(sd[0:2])),
		Height:          int(binary.LittleEndian.Uint16(sd[2:4])),
		BackgroundIndex: sd[5],
		AspectRatio:     sd[6],
	}
	pos := HeaderSize + ScreenDescriptorSize
	if sd[4]&flagColorTable != 0 {
		pal, n, err := readColorTable(data[pos:], sd[4])
		if err != nil {
			return 0, err
		}
		p.screen.GlobalPalette = pal
		pos += n
	}
	return pos, nil
}

func validSignature(data []byte) bool {
	sig := string(data[:HeaderSize])
	return sig == Signature87a || sig == Signature89a
}

// graphicControl holds a pending graphic control extension.
type graphicControl struct {
	seen        bool
	packed      byte
	delay       int
	transparent byte
}

func (g graphicControl) applyTo(img *ImageBlock) {
	if !g.seen {
		return
	}
	img.DelayTime = g.delay
	img.DisposalMethod = (g.packed & gceDisposal) >> gceDisposalPos
	img.HasTransparent = g.packed&gceTransparent != 0
	img.TransparentIdx = g.transparent
}

func (p *Parser) parseExtension(data []byte, pos int, label byte, gce *graphicControl) (int, error) {
	switch label {
	case LabelGraphicControl:
		if pos+1+GraphicControlSize > len(data) {
			return 0, ErrTruncated
		}
		if data[pos] != GraphicControlSize {
			return 0, fmt.Errorf("%w: graphic control block size %d", ErrInvalidBlock, data[pos])
		}
		b := data[pos+1 : pos+1+GraphicControlSize]
		*gce = graphicControl{
			seen:        true,
			packed:      b[0],
			delay:       int(binary.LittleEndian.Uint16(b[1:3])),
			transparent: b[3],
		}
		// Skip any trailing sub-blocks up to the terminator.
		return skipSubBlocks(data, pos+1+GraphicControlSize)

	case LabelComment:
		payload, next, err := collectSubBlocks(data, pos)
		if err != nil {
			return 0, err
		}
		p.comments = append(p.comments, payload)
		return next, nil

	case LabelApplication:
		return p.parseApplication(data, pos)

	case LabelPlainText:
		// Plain text consumes the pending graphic control extension.
		*gce = graphicControl{}
		return skipSubBlocks(data, pos)

	default:
		return skipSubBlocks(data, pos)
	}
}

func (p *Parser) parseApplication(data []byte, pos int) (int, error) {
	if pos >= len(data) {
		return 0, ErrTruncated
	}
	n := int(data[pos])
	if pos+1+n > len(data) {
		return 0, ErrTruncated
	}
	id := string(data[pos+1 : pos+1+n])
	pos += 1 + n
	if id != "NETSCAPE2.0" && id != "ANIMEXTS1.0" {
		return skipSubBlocks(data, pos)
	}
	// Loop sub-block: size 3, id 1, uint16 loop count.
	if pos+4 <= len(data) && data[pos] == 3 && data[pos+1] == 1 {
		p.loopCount = int(binary.LittleEndian.Uint16(data[pos+2 : pos+4]))
	}
	return skipSubBlocks(data, pos)
}

func parseImage(data []byte, pos int) (ImageBlock, int, error) {
	var img ImageBlock
	if pos+ImageDescriptorSize > len(data) {
		return img, 0, ErrTruncated
	}
	d := data[pos : pos+ImageDescriptorSize]
	left := int(binary.LittleEndian.Uint16(d[0:2]))
	top := int(binary.LittleEndian.Uint16(d[2:4]))
	w := int(binary.LittleEndian.Uint16(d[4:6]))
	h := int(binary.LittleEndian.Uint16(d[6:8]))
	flags := d[8]
	pos += ImageDescriptorSize

	img.Bounds = image.Rect(left, top, left+w, top+h)
	img.Interlaced = flags&flagInterlace != 0

	if flags&flagColorTable != 0 {
		pal, n, err := readColorTable(data[pos:], flags)
		if err != nil {
			return img, 0, err
		}
		img.LocalPalette = pal
		pos += n
	}

	if pos >= len(data) {
		return img, 0, ErrTruncated
	}
	img.LitWidth = int(data[pos])
	if img.LitWidth < MinLitWidth || img.LitWidth > MaxLitWidth {
		return img, 0, fmt.Errorf("%w: %d", ErrLitWidth, img.LitWidth)
	}
	pos++

	end, err := skipSubBlocks(data, pos)
	if err != nil {
		return img, 0, err
	}
	img.Data = data[pos:end]
	return img, end, nil
}

// readColorTable reads a color table whose size is encoded in the low three
// bits of flags. It returns the palette and the number of bytes consumed.
func readColorTable(buf []byte, flags byte) (color.Palette, int, error) {
	n := 1 << (1 + uint(flags&maskTableSize))
	size := 3 * n
	if size > len(buf) {
		return nil, 0, ErrTruncated
	}
	pal := make(color.Palette, n)
	for i := range pal {
		pal[i] = color.RGBA{R: buf[3*i], G: buf[3*i+1], B: buf[3*i+2], A: 0xFF}
	}
	return pal, size, nil
}
