// Package codec carries values across the boundary between the host and an
// execution unit.
//
// Values are flattened into a node table (Wire) in which containers refer to
// their children by index. A value reachable along two paths is stored once,
// so shared references and cycles survive the trip. The table is plain JSON
// and travels over the worker pipe as part of each request and response.
//
// The host-side mapping lives here (Encode, Decode). The JavaScript-side
// mapping lives in package sandbox, which builds and reads the same table
// from goja values.
package codec
