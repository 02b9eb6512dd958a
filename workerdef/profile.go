package workerdef

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/imagealter/worker-test-harness/framework/helpers"
	o "github.com/imagealter/worker-test-harness/framework/opt"
)

// Profile holds the protocol details that have changed between worker versions. DefaultProfile
// matches the current ServiceRunner.
type Profile struct {
	Name string

	// InitPattern must appear in the startup output before the harness sends "allocate". An empty
	// pattern means any output is accepted once the worker goes quiet.
	InitPattern string
	// AllocPattern must appear in the output after "allocate". Empty works as for InitPattern.
	AllocPattern string
	// ResultPattern, if set, ends the wait for a transform result as soon as it matches. If empty,
	// the harness waits until the worker goes quiet.
	ResultPattern string

	InitTimeout  time.Duration
	AllocTimeout time.Duration
	// ResultTimeout is the longest gap in output tolerated while waiting for a result.
	ResultTimeout time.Duration
	// ResultDeadline, if defined, limits the total time spent waiting for one result.
	ResultDeadline o.Maybe[time.Duration]

	// FlushTrigger is a command sent after every transform request to make the worker flush its
	// output. Empty means none.
	FlushTrigger string

	URIStyle URIStyle

	// WorkerArgs go before the service directory on the runner's command line.
	WorkerArgs []string

	// QuietPatterns match lines of worker output to leave out of transcripts. They have no effect on
	// what the harness reads.
	QuietPatterns []string

	ChunkSize int
}

// DefaultProfile returns the settings used when no profile file is given.
func DefaultProfile() Profile {
	return Profile{
		Name:          "default",
		InitPattern:   "service initialized",
		AllocPattern:  "allocated",
		InitTimeout:   500 * time.Millisecond,
		AllocTimeout:  500 * time.Millisecond,
		ResultTimeout: 5 * time.Second,
		FlushTrigger:  "show",
		URIStyle:      URIStyleDoubleSlash,
		WorkerArgs:    []string{"-log", "debug"},
		ChunkSize:     1024,
	}
}

// profileFile is the on-disk form. Every field is optional; durations use time.ParseDuration
// syntax such as "500ms".
type profileFile struct {
	Name           *string   `json:"name"`
	InitPattern    *string   `json:"initPattern"`
	AllocPattern   *string   `json:"allocPattern"`
	ResultPattern  *string   `json:"resultPattern"`
	InitTimeout    *string   `json:"initTimeout"`
	AllocTimeout   *string   `json:"allocTimeout"`
	ResultTimeout  *string   `json:"resultTimeout"`
	ResultDeadline *string   `json:"resultDeadline"`
	FlushTrigger   *string   `json:"flushTrigger"`
	URIStyle       *string   `json:"uriStyle"`
	WorkerArgs     *[]string `json:"workerArgs"`
	QuietPatterns  *[]string `json:"quietPatterns"`
	ChunkSize      *int      `json:"chunkSize"`
}

// LoadProfile reads a profile from a JSON or YAML file. Settings the file leaves out keep their
// DefaultProfile values; the name defaults to the file's base name.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Profile{}, fmt.Errorf("can't read profile: %w", err)
	}
	var f profileFile
	if err := helpers.ParseJSONOrYAML(data, &f); err != nil {
		return Profile{}, fmt.Errorf("malformed profile %s: %w", path, err)
	}

	p := DefaultProfile()
	p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	setString := func(target *string, value *string) {
		if value != nil {
			*target = *value
		}
	}
	setString(&p.Name, f.Name)
	setString(&p.InitPattern, f.InitPattern)
	setString(&p.AllocPattern, f.AllocPattern)
	setString(&p.ResultPattern, f.ResultPattern)
	setString(&p.FlushTrigger, f.FlushTrigger)
	for _, d := range []struct {
		name   string
		value  *string
		target *time.Duration
	}{
		{"initTimeout", f.InitTimeout, &p.InitTimeout},
		{"allocTimeout", f.AllocTimeout, &p.AllocTimeout},
		{"resultTimeout", f.ResultTimeout, &p.ResultTimeout},
	} {
		if d.value == nil {
			continue
		}
		if *d.target, err = parsePositiveDuration(*d.value); err != nil {
			return Profile{}, fmt.Errorf("profile %s: %s: %w", path, d.name, err)
		}
	}
	if f.ResultDeadline != nil && *f.ResultDeadline != "" {
		deadline, err := parsePositiveDuration(*f.ResultDeadline)
		if err != nil {
			return Profile{}, fmt.Errorf("profile %s: resultDeadline: %w", path, err)
		}
		p.ResultDeadline = o.Some(deadline)
	}
	if f.URIStyle != nil {
		p.URIStyle = URIStyle(*f.URIStyle)
	}
	if f.WorkerArgs != nil {
		p.WorkerArgs = *f.WorkerArgs
	}
	if f.QuietPatterns != nil {
		p.QuietPatterns = *f.QuietPatterns
	}
	if f.ChunkSize != nil {
		p.ChunkSize = *f.ChunkSize
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// Validate checks that the patterns compile and the numeric settings make sense.
func (p Profile) Validate() error {
	for name, pattern := range map[string]string{
		"initPattern":   p.InitPattern,
		"allocPattern":  p.AllocPattern,
		"resultPattern": p.ResultPattern,
	} {
		if _, err := compileOptional(pattern); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, pattern := range p.QuietPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("quietPatterns: %w", err)
		}
	}
	switch p.URIStyle {
	case URIStyleDoubleSlash, URIStyleTripleSlash:
	default:
		return fmt.Errorf("unknown uriStyle %q (expected %q or %q)", p.URIStyle, URIStyleDoubleSlash, URIStyleTripleSlash)
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunkSize must be positive, got %d", p.ChunkSize)
	}
	return nil
}

// InitRegex returns the compiled InitPattern, or nil if it is empty.
func (p Profile) InitRegex() *regexp.Regexp { return mustCompileOptional(p.InitPattern) }

// AllocRegex returns the compiled AllocPattern, or nil if it is empty.
func (p Profile) AllocRegex() *regexp.Regexp { return mustCompileOptional(p.AllocPattern) }

// ResultRegex returns the compiled ResultPattern, or nil if it is empty.
func (p Profile) ResultRegex() *regexp.Regexp { return mustCompileOptional(p.ResultPattern) }

// QuietRegexes returns the compiled QuietPatterns.
func (p Profile) QuietRegexes() []*regexp.Regexp {
	ret := make([]*regexp.Regexp, 0, len(p.QuietPatterns))
	for _, pattern := range p.QuietPatterns {
		ret = append(ret, regexp.MustCompile(pattern))
	}
	return ret
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// mustCompileOptional panics on a bad pattern; profiles are checked by Validate before use.
func mustCompileOptional(pattern string) *regexp.Regexp {
	rx, err := compileOptional(pattern)
	if err != nil {
		panic(err)
	}
	return rx
}
