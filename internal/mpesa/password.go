package mpesa

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// eat is East Africa Time, the zone the provider expects timestamps in.
var eat = time.FixedZone("EAT", 3*60*60)

// credentials returns the request password and the timestamp it was derived from. Both come
// from the same clock reading and must be sent together.
func credentials(shortCode, passKey string, now time.Time) (password, timestamp string) {
	timestamp = now.In(eat).Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))

	return password, timestamp
}

// ParseTimestamp parses the provider's YYYYMMDDhhmmss format in East Africa Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, s, eat)
}
