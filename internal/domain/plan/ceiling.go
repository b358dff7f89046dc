package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Ceiling is a usage limit: a non-negative count or Unlimited.
type Ceiling int64

// Unlimited is the sentinel for "no limit". It encodes as the string
// "unlimited" in JSON.
const Unlimited Ceiling = -1

const unlimitedLiteral = "unlimited"

func Limit(n int64) Ceiling { return Ceiling(n) }

func (c Ceiling) IsUnlimited() bool { return c == Unlimited }

// Valid reports whether c is a count or the sentinel.
func (c Ceiling) Valid() bool { return c >= 0 || c == Unlimited }

// Allows reports whether usage may grow to n.
func (c Ceiling) Allows(n int64) bool {
	return c == Unlimited || n <= int64(c)
}

func (c Ceiling) String() string {
	if c == Unlimited {
		return unlimitedLiteral
	}
	return strconv.FormatInt(int64(c), 10)
}

func (c Ceiling) MarshalJSON() ([]byte, error) {
	if c == Unlimited {
		return []byte(`"` + unlimitedLiteral + `"`), nil
	}
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}

func (c *Ceiling) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == unlimitedLiteral {
			*c = Unlimited
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("ceiling must be a non-negative integer or %q, got %q", unlimitedLiteral, s)
		}
		data = []byte(strconv.FormatInt(n, 10))
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ceiling must be a non-negative integer or %q: %w", unlimitedLiteral, err)
	}
	if n < 0 {
		return fmt.Errorf("ceiling must be a non-negative integer or %q, got %d", unlimitedLiteral, n)
	}
	*c = Ceiling(n)
	return nil
}
