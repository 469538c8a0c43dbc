package media

import (
	"encoding/base64"
	"errors"
	"regexp"
)

var ErrInvalidDataURL = errors.New("invalid base64 data URL format")

var dataURLPattern = regexp.MustCompile(`^data:([A-Za-z0-9.+/-]+);base64,(.+)$`)

// DecodeDataURL splits a base64 data URL into its content type and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return "", nil, ErrInvalidDataURL
	}
	body, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURL, err)
	}
	return m[1], body, nil
}
