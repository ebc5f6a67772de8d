package checkpoints

// Value wraps a hyperparameter value with typed accessors.
// Accessors return zero values when the underlying type doesn't match,
// rather than returning errors.
type Value struct {
	data any
}

// Raw returns the underlying value without type conversion.
func (v Value) Raw() any {
	return v.data
}

// Exists reports whether the value is present at all.
func (v Value) Exists() bool {
	return v.data != nil
}

// String returns the value as a string, or "" if it is not a string.
func (v Value) String() string {
	s, _ := v.data.(string)
	return s
}

// Int returns the value as an int64. Works for any signed or unsigned integer
// type. Returns 0 if the value is not an integer.
func (v Value) Int() int64 {
	switch n := v.data.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// Float returns the value as a float64. Works for float32, float64 and any
// integer type. Returns 0 if the value is not numeric.
func (v Value) Float() float64 {
	switch n := v.data.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		if i := v.Int(); i != 0 {
			return float64(i)
		}
		return 0
	}
}

// Bool returns the value as a bool, or false if it is not a bool.
func (v Value) Bool() bool {
	b, _ := v.data.(bool)
	return b
}

// Strings returns the value as a string slice, or nil if it is not one.
func (v Value) Strings() []string {
	switch s := v.data.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}
