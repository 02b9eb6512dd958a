package workerdef

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/imagealter/worker-test-harness/framework/helpers"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

const (
	CommandAllocate   = "allocate"
	CommandInvoke     = "inv"
	FunctionTransform = "transform"

	// ParamFile is the one parameter every transform request must have: a file URI for the input image.
	ParamFile = "file"
)

// TransformRequest is one invocation of the worker's transform function.
type TransformRequest struct {
	// File is a file URI for the input image.
	File string

	// Params are all other arguments, such as "actions", "format", and "quality", as JSON. They are
	// passed to the worker unchanged.
	Params map[string]json.RawMessage
}

// EncodeAllocate returns the command that creates a worker instance.
func EncodeAllocate() string {
	return CommandAllocate + "\n"
}

// EncodeTransform returns the command text for a transform request. The JSON argument is written
// with "file" first and the other parameters in sorted order, so that a given request always
// produces the same text. Single quotes in the JSON are escaped, since the worker's command parser
// would otherwise take them as the end of the argument.
//
// If flushTrigger is not empty it is sent as a separate command after the request; some worker
// versions do not flush the result of a command until they receive another one.
func EncodeTransform(req TransformRequest, flushTrigger string) (string, error) {
	payload, err := EncodeTransformArgs(req)
	if err != nil {
		return "", err
	}
	escaped := strings.ReplaceAll(string(payload), "'", `\'`)
	cmd := fmt.Sprintf("%s %s '%s'\n", CommandInvoke, FunctionTransform, escaped)
	if flushTrigger != "" {
		cmd += flushTrigger + "\n"
	}
	return cmd, nil
}

// EncodeTransformArgs returns the unescaped JSON argument of a transform request.
func EncodeTransformArgs(req TransformRequest) ([]byte, error) {
	if req.File == "" {
		return nil, fmt.Errorf("transform request has no %q parameter", ParamFile)
	}
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name(ParamFile).String(req.File)
	for _, name := range helpers.SortedKeys(req.Params) {
		if name == ParamFile {
			continue
		}
		value := req.Params[name]
		if !json.Valid(value) {
			return nil, fmt.Errorf("transform parameter %q is not valid JSON: %s", name, string(value))
		}
		obj.Name(name).Raw(value)
	}
	obj.End()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
