package utils

import (
	"crypto/md5"
	"fmt"
	"hash/fnv"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// ShortHash returns a small deterministic number for an input string,
// used to build source ids like "openai-123456" from post URLs.
func ShortHash(input string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(input))
	return h.Sum32() % 1000000
}
