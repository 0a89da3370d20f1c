package goavif

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

func init() {
	image.RegisterFormat("avif", "????ftypavif", Decode, DecodeConfig)
	image.RegisterFormat("avif", "????ftypavis", Decode, DecodeConfig)
	image.RegisterFormat("avif", "????ftypmif1", Decode, DecodeConfig)
}

// File is an opened AVIF whose metadata has been parsed. Pixel data is read
// only when Decode is called.
type File struct {
	reader    io.ReadSeeker
	container *Container
	info      *Info
}

// Read parses the container structure of an AVIF from an io.ReadSeeker.
func Read(r io.ReadSeeker) (*File, error) {
	c, err := ParseContainer(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AVIF container: %w", err)
	}
	info, err := buildInfo(c)
	if err != nil {
		return nil, fmt.Errorf("failed to read AVIF metadata: %w", err)
	}
	return &File{reader: r, container: c, info: info}, nil
}

func defaultClient() *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ReadFromURL reads an AVIF from a URL using HTTP range requests.
func ReadFromURL(url string, client *fasthttp.Client) (*File, error) {
	if client == nil {
		client = defaultClient()
	}
	return Read(NewHTTPRangeReader(url, client))
}

// Open opens an AVIF from a file path or an http(s) URL and reads its
// metadata.
func Open(pathOrURL string, client *fasthttp.Client) (*File, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return ReadFromURL(pathOrURL, client)
	}

	file, err := os.Open(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	f, err := Read(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// Info returns the file's metadata.
func (f *File) Info() *Info {
	return f.info
}

// Container returns the parsed container.
func (f *File) Container() *Container {
	return f.container
}

// Decode decodes the primary image with d, or with a default Decoder when d
// is nil.
func (f *File) Decode(ctx context.Context, d *Decoder) (*Image, error) {
	if d == nil {
		d = NewDecoder()
	}
	return d.decodeContainer(ctx, f.container, f.info)
}

// Close closes the underlying reader if it is closable.
func (f *File) Close() error {
	if c, ok := f.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func asReadSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Decode decodes an AVIF into an image.Image with the default configuration.
// It is registered with the image package.
func Decode(r io.Reader) (image.Image, error) {
	rs, err := asReadSeeker(r)
	if err != nil {
		return nil, err
	}
	img, err := NewDecoder().DecodeReader(context.Background(), rs)
	if err != nil {
		return nil, err
	}
	return img.ToImage(), nil
}

// DecodeConfig returns the colour model and dimensions of an AVIF without
// decoding it.
func DecodeConfig(r io.Reader) (image.Config, error) {
	rs, err := asReadSeeker(r)
	if err != nil {
		return image.Config{}, err
	}
	info, err := Inspect(rs)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: colorModel(info),
		Width:      info.Width,
		Height:     info.Height,
	}, nil
}

func colorModel(info *Info) color.Model {
	gray := info.Subsampling == SubsamplingMonochrome && !info.HasAlpha
	switch {
	case gray && info.BitDepth == 8:
		return color.GrayModel
	case gray:
		return color.Gray16Model
	case info.BitDepth == 8:
		return color.NRGBAModel
	default:
		return color.NRGBA64Model
	}
}
