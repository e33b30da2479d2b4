package jsonvalue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Parser is the JSON-parsing capability. Instances are published in the
// service registry; the extender only runs while one is available.
type Parser interface {
	// Parse decodes a complete JSON document.
	Parse(text string) (Value, error)
}

// ErrSyntax is matched by every error Parse returns for malformed input.
var ErrSyntax = errors.New("invalid JSON")

// SyntaxError wraps the decoder failure for malformed input.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON: %v", e.Err)
}

// Is implements error matching for errors.Is() checks.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

const defaultMaxDepth = 512

// ParserOption configures the default parser.
type ParserOption func(*TokenParser)

// WithMaxDepth bounds the nesting depth of accepted documents.
func WithMaxDepth(depth int) ParserOption {
	return func(p *TokenParser) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// TokenParser is the default Parser. It walks the encoding/json token
// stream so that object member order and number literals survive.
type TokenParser struct {
	maxDepth int
}

// NewParser creates the default JSON parser service.
func NewParser(opts ...ParserOption) *TokenParser {
	p := &TokenParser{maxDepth: defaultMaxDepth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes text into a Value. Trailing data after the first document
// is rejected.
func (p *TokenParser) Parse(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := p.decode(dec, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Value{}, &SyntaxError{Err: err}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return Value{}, &SyntaxError{Err: err}
	}
	return v, nil
}

func (p *TokenParser) decode(dec *json.Decoder, depth int) (Value, error) {
	if depth > p.maxDepth {
		return Value{}, fmt.Errorf("nesting exceeds %d levels", p.maxDepth)
	}

	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return p.decodeObject(dec, depth)
		case '[':
			return p.decodeArray(dec, depth)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return NewString(t), nil
	case json.Number:
		return Value{kind: KindNumber, s: string(t)}, nil
	case bool:
		return NewBool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func (p *TokenParser) decodeObject(dec *json.Decoder, depth int) (Value, error) {
	om := orderedmap.New[string, Value]()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key is %T, not string", tok)
		}
		val, err := p.decode(dec, depth+1)
		if err != nil {
			return Value{}, err
		}
		om.Set(key, val)
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: KindObject, obj: om}, nil
}

func (p *TokenParser) decodeArray(dec *json.Decoder, depth int) (Value, error) {
	var arr []Value
	for dec.More() {
		val, err := p.decode(dec, depth+1)
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, val)
	}
	// closing ']'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: KindArray, arr: arr}, nil
}
