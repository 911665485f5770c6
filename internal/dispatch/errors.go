package dispatch

import "errors"

// Error taxonomy for malformed input, per spec.md §7. Unknown elements and
// unknown enterprise numbers are deliberately absent here: they are not
// errors, they are SKIP_ELEMENT decisions the sequencer compiler makes
// silently.
var (
	ErrMalformedHeader          = errors.New("dispatch: malformed packet header")
	ErrMalformedFlowset         = errors.New("dispatch: malformed flowset")
	ErrTruncatedTemplate        = errors.New("dispatch: truncated template record")
	ErrTruncatedOptionTemplate  = errors.New("dispatch: truncated options template record")
	ErrUnsupportedTemplateShape = errors.New("dispatch: unsupported template shape")
)
