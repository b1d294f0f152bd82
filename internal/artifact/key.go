package artifact

import (
	"crypto/sha256"
	"fmt"
	"time"
)

const keyTimeFormat = "20060102150405"

// CaptureKey places screenshots of one URL under a stable hash directory
// so successive runs of the same page line up next to each other.
func CaptureKey(url string, ext string, t time.Time) string {
	return fmt.Sprintf("visdiff/capture/%s/%s.%s", shortHash(url), t.Format(keyTimeFormat), ext)
}

// DiffKey does the same for a baseline/target pair. The separator keeps
// distinct pairs with coinciding concatenations apart.
func DiffKey(baselineURL string, targetURL string, ext string, t time.Time) string {
	return fmt.Sprintf("visdiff/diff/%s/%s.%s", shortHash(baselineURL+"\n"+targetURL), t.Format(keyTimeFormat), ext)
}

func shortHash(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
