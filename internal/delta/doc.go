// Package delta reconstructs the simulator's server-side state from a stream
// of FULL and DELTA update frames.
//
// A FULL frame replaces the whole tree. A DELTA frame must carry the sequence
// number immediately after the last applied one and is merged recursively:
// null deletes a key, an object merges into the existing object, anything
// else replaces the value. Merging never mutates the previous tree, so a
// snapshot handed to a consumer stays valid forever.
package delta
