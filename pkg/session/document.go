// Package session manages the lifecycle of a web-services session: acquiring a challenge token,
// logging in with a derived access key, caching the resulting credential in a backing store, and
// transparently re-authenticating when the cached credential goes stale or is rejected.
package session

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultKey is the backing-store key the session document is cached under. All processes sharing
// a store and key share one session.
const DefaultKey = "trellis:session"

// Document is the persisted session state. Token and ExpireTime are issued together by the
// getchallenge operation; SessionID is added by a successful login against that same token. A
// SessionID is never paired with a token other than the one it was issued for.
type Document struct {
	Token      string `json:"token"`
	ExpireTime int64  `json:"expireTime"` // seconds since epoch, as reported by the server
	SessionID  string `json:"sessionId,omitempty"`
}

// Fresh returns true if the document holds a token that has not expired at time now. A nil
// document is never fresh.
func (d *Document) Fresh(now time.Time) bool {
	if d == nil {
		return false
	}
	return d.Token != "" && d.ExpireTime >= now.Unix()
}

// epochSeconds decodes a Unix timestamp that the server may emit as either a JSON number or a
// quoted string.
type epochSeconds int64

func (e *epochSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	// Some deployments report fractional seconds.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*e = epochSeconds(f)
	return nil
}

var _ json.Unmarshaler = (*epochSeconds)(nil)
