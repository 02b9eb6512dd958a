package workerdef

import (
	"errors"
	"fmt"

	o "github.com/imagealter/worker-test-harness/framework/opt"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
)

// TransformResponse is the result of a successful transform.
type TransformResponse struct {
	// File is a file URI for the output image.
	File string

	OrigWidth  o.Maybe[int]
	OrigHeight o.Maybe[int]
	Width      o.Maybe[int]
	Height     o.Maybe[int]

	// JSON is the object that was found in the worker's output.
	JSON string
}

// LocalPath converts File to a path on the local filesystem.
func (r TransformResponse) LocalPath() (string, error) {
	return PathFromFileURI(r.File)
}

// Dimensions describes whatever image sizes the worker reported, such as "640x480 -> 100x80", or
// returns "" if it reported none.
func (r TransformResponse) Dimensions() string {
	size := func(w, h o.Maybe[int]) string {
		if !w.IsDefined() && !h.IsDefined() {
			return ""
		}
		return fmt.Sprintf("%sx%s", dimension(w), dimension(h))
	}
	orig, result := size(r.OrigWidth, r.OrigHeight), size(r.Width, r.Height)
	switch {
	case orig != "" && result != "":
		return orig + " -> " + result
	case orig != "":
		return orig + " -> ?"
	default:
		return result
	}
}

func dimension(m o.Maybe[int]) string {
	if !m.IsDefined() {
		return "?"
	}
	return fmt.Sprint(m.Value())
}

// DecodeResponse finds the result object in the worker's output and decodes it. The output may
// contain any amount of other text around the object, as long as it contains no other JSON object.
//
// If the object describes an error, the returned error is a *WorkerError; any other problem is a
// *ProtocolParseError.
func DecodeResponse(raw string) (TransformResponse, error) {
	span, err := ExtractJSONObject(raw)
	if err != nil {
		return TransformResponse{}, err
	}

	resp := TransformResponse{JSON: span}
	var workerErr *WorkerError
	r := jreader.NewReader([]byte(span))
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case ParamFile:
			resp.File = r.String()
		case "orig_width":
			resp.OrigWidth = readDimension(&r)
		case "orig_height":
			resp.OrigHeight = readDimension(&r)
		case "width":
			resp.Width = readDimension(&r)
		case "height":
			resp.Height = readDimension(&r)
		case "error":
			if workerErr == nil {
				workerErr = &WorkerError{}
			}
			workerErr.Code = r.String()
		case "verboseError":
			if workerErr == nil {
				workerErr = &WorkerError{}
			}
			workerErr.Message = r.String()
		default:
			_ = r.SkipValue()
		}
	}
	if err := r.Error(); err != nil {
		return TransformResponse{}, &ProtocolParseError{Message: "malformed result", Raw: raw, Err: err}
	}
	if workerErr != nil {
		return TransformResponse{}, workerErr
	}
	if resp.File == "" {
		return TransformResponse{}, &ProtocolParseError{Message: `result has no "file" property`, Raw: raw}
	}
	return resp, nil
}

func readDimension(r *jreader.Reader) o.Maybe[int] {
	if value, nonNull := r.IntOrNull(); nonNull {
		return o.Some(value)
	}
	return o.None[int]()
}

var errUnbalanced = errors.New("unbalanced braces")

// ExtractJSONObject returns the one top-level "{...}" span in text. Braces inside JSON strings are
// ignored. It is an error for there to be no such span, for the first one to be unterminated, or
// for there to be more than one.
func ExtractJSONObject(text string) (string, error) {
	start, end, err := nextObjectSpan(text, 0)
	if err != nil {
		return "", &ProtocolParseError{Message: "no complete JSON object in output", Raw: text, Err: err}
	}
	if start < 0 {
		return "", &ProtocolParseError{Message: "no JSON object in output", Raw: text}
	}
	if nextStart, _, _ := nextObjectSpan(text, end); nextStart >= 0 {
		return "", &ProtocolParseError{Message: "more than one JSON object in output", Raw: text}
	}
	return text[start:end], nil
}

// nextObjectSpan scans from offset for a balanced object. It returns start -1 if there is no
// opening brace at all.
func nextObjectSpan(text string, offset int) (start, end int, err error) {
	start = -1
	depth := 0
	inString, escaped := false, false
	for i := offset; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' {
				start, depth = i, 1
			}
			continue
		}
		switch {
		case escaped:
			escaped = false
		case inString:
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return start, i + 1, nil
			}
		}
	}
	if start >= 0 {
		return start, len(text), errUnbalanced
	}
	return -1, len(text), nil
}
