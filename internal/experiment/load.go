package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/nvandessel/namsweep/internal/jsonc"
	"github.com/nvandessel/namsweep/internal/validate"
	"github.com/rs/zerolog"
)

// ErrMissingSection marks a document lacking one of the required top-level
// sections. Match it with errors.Is.
var ErrMissingSection = errors.New("missing required section")

// ErrUnknownSection marks a document with a top-level key outside the schema.
var ErrUnknownSection = errors.New("unknown section")

// ErrMissingField marks a required field that is absent or null.
var ErrMissingField = errors.New("missing required field")

// ErrDuplicateKey marks an object key that appears more than once.
var ErrDuplicateKey = errors.New("duplicate key")

// RequiredSections are the top-level keys every document must contain.
var RequiredSections = []string{"data", "topology", "input", "output", "experiments"}

// requiredFields are the keys each section must set. Fields with a default
// (data.n_samples, topology.params, topology.multiplicity, repeat) are
// optional.
var requiredFields = map[string][]string{
	"data":     {"n_bits_in", "n_bits_out", "n_ones_in", "n_ones_out"},
	"topology": {"neuron_type", "w"},
	"input":    {"burst_size", "time_window", "isi", "sigma_t", "sigma_t_offs", "p0", "p1"},
	"output":   {"burst_size"},
}

var requiredExperimentFields = []string{"name", "sweeps"}

// SyntaxError reports malformed JSON after comments have been stripped. Line
// and column refer to the original document.
type SyntaxError struct {
	Line int
	Col  int
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %v", e.Line, e.Col, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse strips comments from src, decodes it and validates the result.
// Failures are a *SyntaxError for malformed input, or a
// validate.ValidationError listing every offending field path.
func Parse(src []byte) (*Document, error) {
	stripped, err := jsonc.Strip(src)
	if err != nil {
		var se *jsonc.SyntaxError
		if errors.As(err, &se) {
			return nil, &SyntaxError{Line: se.Line, Col: se.Col, Err: se.Err}
		}
		return nil, &SyntaxError{Line: 1, Col: 1, Err: err}
	}

	if dups, err := duplicateKeys(stripped); err == nil && len(dups) > 0 {
		v := validate.New()
		for _, field := range dups {
			v.AddCause(field, ErrDuplicateKey.Error(), nil, ErrDuplicateKey)
		}
		return nil, v.Err()
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(stripped, &top); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			// Offset counts the offending byte; report its own position.
			line, col := jsonc.Position(src, max(se.Offset-1, 0))
			return nil, &SyntaxError{Line: line, Col: col, Err: se}
		}
		return nil, &SyntaxError{Line: 1, Col: 1, Err: errors.New("document must be a JSON object")}
	}
	if top == nil {
		return nil, &SyntaxError{Line: 1, Col: 1, Err: errors.New("document must be a JSON object")}
	}

	v := validate.New()
	for _, section := range RequiredSections {
		if _, ok := top[section]; !ok {
			v.AddCause(section, ErrMissingSection.Error(), nil, ErrMissingSection)
		}
	}
	for _, key := range sortedKeys(top) {
		if !slices.Contains(RequiredSections, key) {
			v.AddCause(key, ErrUnknownSection.Error(), nil, ErrUnknownSection)
		}
	}
	if !v.IsValid() {
		return nil, v.Err()
	}

	doc := &Document{}
	decodeSection(v, "data", top["data"], &doc.Data)
	decodeSection(v, "topology", top["topology"], &doc.Topology)
	decodeSection(v, "input", top["input"], &doc.Input)
	decodeSection(v, "output", top["output"], &doc.Output)
	doc.Experiments = decodeExperiments(v, top["experiments"])
	if !v.IsValid() {
		return nil, v.Err()
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadFile reads and parses a document from disk.
func LoadFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return Parse(src)
}

// Loader loads documents and logs what it finds.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a loader that logs through logger.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "loader").Logger()}
}

// Load reads, parses and validates the document at path.
func (l *Loader) Load(path string) (*Document, error) {
	doc, err := LoadFile(path)
	if err != nil {
		l.logger.Debug().Err(err).Str("path", path).Msg("document rejected")
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Int("experiments", len(doc.Experiments)).
		Int("runs", doc.TotalRuns()).
		Msg("document loaded")
	return doc, nil
}

func decodeSection(v *validate.Validator, name string, raw json.RawMessage, dst any) {
	if isNull(raw) {
		v.AddCause(name, ErrMissingSection.Error(), nil, ErrMissingSection)
		return
	}
	if !checkRequired(v, name, raw, requiredFields[name]) {
		return
	}
	if err := decodeStrict(raw, dst); err != nil {
		fe := fieldErrorFrom(name, err)
		v.AddError(fe.Field, fe.Msg, nil)
	}
}

func decodeExperiments(v *validate.Validator, raw json.RawMessage) []Experiment {
	if isNull(raw) {
		v.AddCause("experiments", ErrMissingSection.Error(), nil, ErrMissingSection)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		v.AddError("experiments", "must be a list of experiments", nil)
		return nil
	}

	out := make([]Experiment, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("experiments[%d]", i)
		if !checkRequired(v, prefix, item, requiredExperimentFields) {
			continue
		}
		var e Experiment
		if err := json.Unmarshal(item, &e); err != nil {
			fe := fieldErrorFrom(prefix, err)
			v.AddError(fe.Field, fe.Msg, nil)
			continue
		}
		out = append(out, e)
	}
	return out
}

// checkRequired reports every field of raw that is absent or null. It
// returns false when raw is not an object.
func checkRequired(v *validate.Validator, prefix string, raw json.RawMessage, fields []string) bool {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil || members == nil {
		v.AddError(prefix, "must be an object", nil)
		return false
	}
	for _, f := range fields {
		if m, ok := members[f]; !ok || isNull(m) {
			v.AddCause(prefix+"."+f, ErrMissingField.Error(), nil, ErrMissingField)
		}
	}
	return true
}

// duplicateKeys returns the field path of every object key that repeats an
// earlier key of the same object, in document order.
func duplicateKeys(data []byte) ([]string, error) {
	var dups []string
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := scanKeys(dec, "", &dups); err != nil {
		return nil, err
	}
	return dups, nil
}

func scanKeys(dec *json.Decoder, path string, dups *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch delim {
	case '{':
		seen := make(map[string]bool)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := tok.(string)
			field := memberPath(path, key)
			if seen[key] {
				*dups = append(*dups, field)
			}
			seen[key] = true
			if err := scanKeys(dec, field, dups); err != nil {
				return err
			}
		}
	case '[':
		for i := 0; dec.More(); i++ {
			if err := scanKeys(dec, fmt.Sprintf("%s[%d]", path, i), dups); err != nil {
				return err
			}
		}
	}

	// Closing delimiter.
	_, err = dec.Token()
	return err
}

// memberPath names key inside the object at parent, quoting sweep keys the
// way validation errors do.
func memberPath(parent, key string) string {
	switch {
	case parent == "":
		return key
	case strings.HasPrefix(parent, "experiments[") && strings.HasSuffix(parent, "].sweeps"):
		return parent + "[" + strconv.Quote(key) + "]"
	default:
		return parent + "." + key
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Marshal encodes a document as indented JSON without comments. Parsing the
// result yields a document equal to d.
func Marshal(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return append(data, '\n'), nil
}

// FieldPaths flattens a validation failure into "path: message" lines, or
// returns the error text when err carries no field information.
func FieldPaths(err error) []string {
	var ve validate.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, len(ve.Errors()))
	for i, fe := range ve.Errors() {
		out[i] = fe.Error()
	}
	return out
}
