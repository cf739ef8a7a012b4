package models

import "fmt"

// All lists every model managed by migrations.
var All = []any{
	&Project{},
	&Schedule{},
	&Run{},
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
