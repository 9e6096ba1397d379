package stdlib

import (
	"fmt"

	"jstar/value"
)

func asGoString(v value.Value) (string, bool) {
	if s, ok := v.AsObj().(*value.String); v.IsObj() && ok {
		return s.Bytes, true
	}
	return "", false
}

func typeError(fn, want string, got value.Value) error {
	kind := "Null"
	switch got.Kind() {
	case value.Bool:
		kind = "Boolean"
	case value.Number:
		kind = "Number"
	case value.Handle:
		kind = "Handle"
	case value.Object:
		kind = got.AsObj().Kind().String()
	}
	return fmt.Errorf("%s expects a %s, got %s", fn, want, kind)
}
