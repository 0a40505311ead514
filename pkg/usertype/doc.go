// Package usertype selects, among the known implementations of a logical
// native type, the one matching the layout of a value.
//
// The layout of types like std::basic_string changes between revisions of
// the library that implements them. Each known layout is registered as a
// Variant, whose Match function checks the presence and nesting of field
// names in the type description of a value. A Selector walks the variants
// in registration order and builds an adapter for the first one that
// matches.
package usertype
