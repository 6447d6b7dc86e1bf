// Package device owns the command receive loop and its process supervisor.
//
// Ownership boundary:
// - per-iteration receive/decode/dispatch/respond sequencing
// - the iteration buffer context (fixed input and output regions)
// - reset and fatal propagation out of the loop
// - restart-on-reset, end-of-session policy, and the exit path
//
// Exactly one command is in flight at a time. The loop never answers an
// iteration that ended in a transport reset.
package device
