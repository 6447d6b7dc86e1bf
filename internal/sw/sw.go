// Package sw owns the status-word catalog returned to the host.
//
// Ownership boundary:
// - reserved envelope codes shared by decode and dispatch failures
// - handler-level codes and runtime catalog extensions
// - the error type that carries a status word through a call chain
package sw

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// StatusWord is the 16-bit outcome code sent back to the host.
type StatusWord uint16

// Reserved envelope codes.
const (
	OK                 StatusWord = 0x9000
	WrongLength        StatusWord = 0x6A87
	InvalidData        StatusWord = 0x6A80
	UnknownInstruction StatusWord = 0x6D00
	ClassNotSupported  StatusWord = 0x6E00
	Generic            StatusWord = 0x6F00
	IOReset            StatusWord = 0x6F01 // never emitted; reset is not answered
)

// Handler-level codes.
const (
	Deny                StatusWord = 0x6985
	WrongP1P2           StatusWord = 0x6A86
	WrongResponseLength StatusWord = 0xB000
	BadState            StatusWord = 0xB007
)

var (
	ErrReservedCode = errors.New("sw: reserved envelope code")
	ErrCodeExists   = errors.New("sw: code already registered")
	ErrInvalidName  = errors.New("sw: invalid code name")
)

var reserved = map[StatusWord]string{
	OK:                 "OK",
	WrongLength:        "WRONG_DATA_LENGTH",
	InvalidData:        "INVALID_DATA",
	UnknownInstruction: "INS_NOT_SUPPORTED",
	ClassNotSupported:  "CLA_NOT_SUPPORTED",
	Generic:            "GENERIC_ERROR",
	IOReset:            "IO_RESET",
}

var (
	mu    sync.RWMutex
	names = map[StatusWord]string{
		Deny:                "DENY",
		WrongP1P2:           "WRONG_P1P2",
		WrongResponseLength: "WRONG_RESPONSE_LENGTH",
		BadState:            "BAD_STATE",
	}
)

// Register extends the catalog with a handler-specific code.
func Register(code StatusWord, name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if IsReserved(code) {
		return fmt.Errorf("%w: 0x%04X", ErrReservedCode, uint16(code))
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := names[code]; ok {
		return fmt.Errorf("%w: 0x%04X", ErrCodeExists, uint16(code))
	}
	names[code] = name
	return nil
}

// IsReserved reports whether code belongs to the envelope catalog.
func IsReserved(code StatusWord) bool {
	_, ok := reserved[code]
	return ok
}

// Name returns the catalog name for code.
func Name(code StatusWord) (string, bool) {
	if n, ok := reserved[code]; ok {
		return n, true
	}
	mu.RLock()
	defer mu.RUnlock()
	n, ok := names[code]
	return n, ok
}

// Codes returns every catalogued code in ascending order.
func Codes() []StatusWord {
	mu.RLock()
	out := make([]StatusWord, 0, len(reserved)+len(names))
	for code := range names {
		out = append(out, code)
	}
	mu.RUnlock()
	for code := range reserved {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s StatusWord) String() string {
	if n, ok := Name(s); ok {
		return n
	}
	return fmt.Sprintf("0x%04X", uint16(s))
}

// Bytes returns the big-endian wire form.
func (s StatusWord) Bytes() [2]byte {
	return [2]byte{byte(s >> 8), byte(s)}
}

// Hex returns the four-digit hex form used in logs and metric labels.
func (s StatusWord) Hex() string {
	return fmt.Sprintf("%04X", uint16(s))
}
