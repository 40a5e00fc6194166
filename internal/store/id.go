package store

import "github.com/google/uuid"

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
