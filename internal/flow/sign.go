package flow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the gateway request signature: parameters sorted by key
// ascending, concatenated as key+value with no separator, HMAC-SHA256 over
// the result, lowercase hex. The sort order and the absence of separators
// are part of the gateway's trust contract. A pre-existing "s" entry is
// excluded so signing is stable when re-signing a parameter set.
func Sign(params map[string]string, secretKey string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "s" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
