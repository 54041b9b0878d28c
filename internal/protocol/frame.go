// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package protocol implements the length-prefixed framing spoken by `ampl -g` over
// its standard streams.
//
// Every frame on the wire is
//
//	<decimal-length><space><length bytes>
//
// where the first line of the payload is a command keyword and the remainder is the
// body. The child emits a frame whose command starts with "prompt" after each unit
// of work, so reading until a prompt frame is the unit of request/response
// completion. The framing has no resynchronisation marker: any malformed header or
// short read leaves the stream misaligned for good.
package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"iampl/cli/internal/errors"
)

// maxHeaderDigits bounds the decimal length header so it always fits an int64.
const maxHeaderDigits = 18

// MaxFrameSize caps the payload length accepted from a header. AMPL output of this
// size only arises from a corrupt header.
const MaxFrameSize = 1 << 30

// promptPrefix marks the frame that ends a response burst.
const promptPrefix = "prompt"

// Frame is one protocol unit exchanged with the child process.
type Frame struct {
	Command string
	Body    string
}

// IsPrompt reports whether the frame signals that the child is ready for input.
func (f Frame) IsPrompt() bool {
	return strings.HasPrefix(f.Command, promptPrefix)
}

// Sink receives frames as they are read.
type Sink func(Frame)

// Reader decodes frames from the child's output stream.
// It is not safe for concurrent use.
type Reader struct {
	r      io.ByteReader
	src    io.Reader
	frames int64
}

// NewReader returns a Reader over r. Readers that already implement io.ByteReader are
// used directly so header bytes are consumed one at a time with no read-ahead.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		b := bufio.NewReader(r)
		return &Reader{r: b, src: b}
	}
	return &Reader{r: br, src: r}
}

// Frames returns the number of frames read so far.
func (fr *Reader) Frames() int64 { return fr.frames }

// ReadFrame consumes exactly one frame.
func (fr *Reader) ReadFrame() (Frame, error) {
	length, err := fr.readHeader()
	if err != nil {
		return Frame{}, err
	}
	// the buffer grows with the bytes that arrive, not with the header's claim
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, fr.src, length); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, errors.Wrap(errors.StreamDesync, fmt.Sprintf("reading %d byte frame body", length), err)
	}
	fr.frames++

	command, body, _ := strings.Cut(payload.String(), "\n")
	return Frame{Command: command, Body: body}, nil
}

// readHeader accumulates decimal digits up to the single space separator. It stops at
// the first offending byte so nothing past it is consumed.
func (fr *Reader) readHeader() (int64, error) {
	var digits []byte
	for {
		c, err := fr.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(digits) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, errors.Wrap(errors.StreamDesync, "reading frame header", err)
		}
		if c == ' ' {
			break
		}
		if c < '0' || c > '9' {
			return 0, errors.Newf(errors.StreamDesync, "unexpected byte %q in frame header %q", c, digits)
		}
		if len(digits) == maxHeaderDigits {
			return 0, errors.Newf(errors.StreamDesync, "frame header %q too long", digits)
		}
		digits = append(digits, c)
	}
	if len(digits) == 0 {
		return 0, errors.New(errors.StreamDesync, "empty frame header")
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, errors.Wrap(errors.StreamDesync, "parsing frame header", err)
	}
	if n > MaxFrameSize {
		return 0, errors.Newf(errors.StreamDesync, "frame length %d exceeds %d", n, MaxFrameSize)
	}
	return n, nil
}

// ReadUntilPrompt reads frames until the first prompt frame and returns the bodies of
// all other frames concatenated in arrival order. onBlock, if non-nil, sees every
// non-prompt frame as soon as it is read. The prompt frame itself is consumed but not
// emitted.
func (fr *Reader) ReadUntilPrompt(onBlock Sink) (string, error) {
	var out strings.Builder
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			return out.String(), err
		}
		if f.IsPrompt() {
			return out.String(), nil
		}
		if onBlock != nil {
			onBlock(f)
		}
		out.WriteString(f.Body)
	}
}

// Writer encodes outgoing payloads.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w. If w has a Flush method it is called after each
// frame so the child sees the command without buffering delay.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePayload writes one frame holding payload verbatim. Outgoing AMPL statements are
// sent this way, without a command line.
func (fw *Writer) WritePayload(payload string) error {
	if _, err := io.WriteString(fw.w, strconv.Itoa(len(payload))+" "+payload); err != nil {
		return err
	}
	if f, ok := fw.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// WriteFrame writes f with its command line.
func (fw *Writer) WriteFrame(f Frame) error {
	return fw.WritePayload(f.Command + "\n" + f.Body)
}
