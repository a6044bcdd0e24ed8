package assert

import "fmt"

// NotNil panics if value is nil, name describes the value in the panic message.
func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", name))
	}
}

func Positive(value int, name string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %d", name, value))
	}
}
