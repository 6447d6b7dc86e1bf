// Package apdu owns the command envelope wire contract.
//
// Ownership boundary:
// - command header decode/encode
// - response staging in the fixed output region
// - response status/payload layout
package apdu
