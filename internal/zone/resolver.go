// Package zone resolves a host-supplied stream bus address into the
// client slot index it addresses.
package zone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Keyword is the marker substring a bus address carries to identify its
// destination zone, e.g. "front-left_audio_zone_3".
const Keyword = "_audio_zone_"

// ErrOutOfRange is returned when a resolved client id is not a valid
// slot index for the configured client count.
var ErrOutOfRange = errors.New("zone: client id exceeds maximum")

// inputRemapThreshold and inputRemapOffset implement the host's
// secondary-user numbering convention for input streams only: ids at or
// above the threshold are offset down by it. Output ids are never
// remapped.
const (
	inputRemapThreshold = 10
	inputRemapOffset    = 10
)

// parse extracts the client id embedded in addr. Absence of the
// keyword, a malformed integer, or a negative value all yield 0, matching
// the permissive parse the original device driver performs.
func parse(addr string) int {
	idx := strings.Index(addr, Keyword)
	if idx < 0 {
		return 0
	}

	rest := addr[idx+len(Keyword):]
	end := 0
	for end < len(rest) && (rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}

	n, err := strconv.Atoi(rest[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ResolveOutput returns the output client id for addr, bounds-checked
// against maxClients.
func ResolveOutput(addr string, maxClients int) (int, error) {
	return checkRange(parse(addr), maxClients)
}

// ResolveInput returns the input client id for addr: the same parse as
// ResolveOutput, then the host's user-id remap is applied before the
// bounds check.
func ResolveInput(addr string, maxClients int) (int, error) {
	id := parse(addr)
	if id >= inputRemapThreshold {
		id -= inputRemapOffset
	}
	return checkRange(id, maxClients)
}

func checkRange(id, maxClients int) (int, error) {
	if id < 0 || id >= maxClients {
		return 0, fmt.Errorf("%w: id=%d max=%d", ErrOutOfRange, id, maxClients)
	}
	return id, nil
}
