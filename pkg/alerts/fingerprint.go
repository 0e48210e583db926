package alerts

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives the stable identity key for an alert condition. The
// timestamp is quantized into dedup-window-sized buckets so that repeat
// detections inside one window collide while a later window re-keys and is
// allowed to re-alert. This is an identity key, not a security boundary.
func Fingerprint(category Category, source Source, entity string, ts time.Time, window time.Duration) string {
	bucketSize := int64(window / time.Second)
	if bucketSize < 1 {
		bucketSize = 1
	}
	bucket := ts.Unix() / bucketSize

	h := xxhash.New()
	h.WriteString(string(category))
	h.WriteString("|")
	h.WriteString(string(source))
	h.WriteString("|")
	h.WriteString(entity)
	h.WriteString("|")
	h.WriteString(strconv.FormatInt(bucket, 10))

	return strconv.FormatUint(h.Sum64(), 16)
}
