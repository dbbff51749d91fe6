// Package interop defines the tagged value representation shared by the host
// and the execution engines: the closed kind catalog, encode/decode with
// ownership tracking, ordered parameter lists, and the packed semantic
// version form used for capability negotiation.
package interop
