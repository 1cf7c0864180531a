package collector

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

const (
	idAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	idRandomLength = 9
)

// newID returns base36(unix millis) followed by nine random base-36 digits.
func newID(now time.Time) string {
	buf := make([]byte, idRandomLength)
	base := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + string(buf)
}
