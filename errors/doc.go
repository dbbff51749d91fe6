// Package errors provides the structured error type shared by every runtime
// layer. Errors carry a processing phase and a failure kind so hosts can gate
// on categories (type_mismatch, stale_handle, reentrancy_violation, ...)
// without parsing message text. Errors are returned as values at the call
// that detected them; nothing is thrown across the boundary.
package errors
