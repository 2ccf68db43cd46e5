package common

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString handles the LLM returning either a string or []string, unifying to string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = FlexString(strings.Join(arr, "\n"))
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// FlexFloat handles the LLM returning a number either as a JSON number or as a
// quoted numeric string ("7.5"). Unparseable values decode to 0 rather than
// failing the whole summary.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = FlexFloat(n)
			return nil
		}
	}
	*f = 0
	return nil
}

func (f FlexFloat) Float64() float64 {
	return float64(f)
}
