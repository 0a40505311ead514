// Package stdtypes implements user types for the containers of the C++
// standard library.
//
// Each user type knows the layouts used by several standard library
// implementations and selects one structurally, by looking at the names
// of the fields in the debug symbols of the value. Properties are read
// lazily and cached until the memory of the process changes.
package stdtypes
