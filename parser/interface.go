// Package parser turns the raw bytes of a module descriptor into its
// identity fields and the nested portlet metadata.
package parser

import "io"

// DescriptorParser parses a descriptor stream into a Descriptor.
type DescriptorParser interface {
	// Parse consumes r and returns the parsed descriptor. Every failure
	// matches ErrMalformedDescriptor.
	Parse(r io.Reader) (*Descriptor, error)
}
