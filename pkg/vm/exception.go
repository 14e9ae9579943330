package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/jweave/pkg/native"
)

// ErrClassNotFound is wrapped by every loader when a class does not exist.
var ErrClassNotFound = errors.New("class not found")

// JavaException carries a thrown Java object through Go error returns.
type JavaException struct {
	Object *JObject
}

func (e *JavaException) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s: %s", e.ClassName(), msg)
	}
	return e.ClassName()
}

func (e *JavaException) ClassName() string {
	return e.Object.ClassName()
}

// Message returns the detail message, or "" when there is none.
func (e *JavaException) Message() string {
	if s, ok := e.Object.GetField("detailMessage").Ref.(*native.JString); ok {
		return s.Value
	}
	return ""
}

// IsInstance reports whether the thrown object is an instance of class.
func (e *JavaException) IsInstance(class string) bool {
	return e.Object.Class != nil && e.Object.Class.IsSubclassOf(class)
}
