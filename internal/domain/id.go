package domain

import (
	"math/rand/v2"
	"regexp"
	"time"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var complaintIDRegex = regexp.MustCompile(`^CMP-\d{4}-\d{2}-\d{2}-[A-Z0-9]{6}$`)

// NewComplaintID returns CMP-YYYY-MM-DD-XXXXXX for the given creation time.
func NewComplaintID(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return "CMP-" + now.Format("2006-01-02") + "-" + string(suffix)
}

func ValidComplaintID(id string) bool {
	return complaintIDRegex.MatchString(id)
}
