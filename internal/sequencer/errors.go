package sequencer

import "errors"

// ErrUnsupportedTemplateShape is returned by Compile when a template
// declares a layout the compiler has no translation for: both address
// families at once, an options template routed here by mistake, or a
// template none of whose fields maps to an output slot.
var ErrUnsupportedTemplateShape = errors.New("sequencer: unsupported template shape")

// ErrTruncatedRecord is returned by Run when a data record ends before the
// program's steps finish consuming it.
var ErrTruncatedRecord = errors.New("sequencer: truncated data record")

// ErrOutputBufferFull is returned by Run when the caller's output buffer
// cannot hold one more transcoded record.
var ErrOutputBufferFull = errors.New("sequencer: output buffer full")
