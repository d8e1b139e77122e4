// Package types defines the shared vocabulary of the persistence engine:
// data formats, acquisition modes and element data types. These are closed
// enumerations; the on-disk filename convention and container layout depend
// on their string forms staying stable.
package types
