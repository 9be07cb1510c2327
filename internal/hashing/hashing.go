// Package hashing implements the deterministic visitor bucketing hash.
//
// The recipe is a cross-SDK compatibility contract: concatenate the visitor
// code with the decimal container id (and, when present, the decimal repool
// time), SHA-256 the UTF-8 bytes, take the first four digest bytes as a
// big-endian unsigned 32-bit integer, and divide by 2^32. Every SDK for this
// platform must produce bit-identical results for the same inputs.
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
)

// ObtainHashDouble maps a visitor and container to a float in [0, 1).
// respoolTimes are appended in the order given; pass none when the variation
// table carries no repool timestamps.
func ObtainHashDouble(visitorCode string, containerID int, respoolTimes ...int64) float64 {
	input := visitorCode + strconv.Itoa(containerID)
	for _, t := range respoolTimes {
		input += strconv.FormatInt(t, 10)
	}
	return hashToUnit(input)
}

// ObtainHashDoubleMEGroup maps a visitor and mutually-exclusive group name to
// a float in [0, 1). Unlike ObtainHashDouble there is no container id; the
// group name alone namespaces the hash.
func ObtainHashDoubleMEGroup(visitorCode, groupName string) float64 {
	return hashToUnit(visitorCode + groupName)
}

func hashToUnit(input string) float64 {
	digest := sha256.Sum256([]byte(input))
	bucket := binary.BigEndian.Uint32(digest[:4])
	return float64(bucket) / (1 << 32)
}
