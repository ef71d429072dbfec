package assert

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/iov-one/quorum/errors"
)

// Tester is the part of testing.TB the assertions need.
type Tester interface {
	Helper()
	Fatalf(string, ...interface{})
}

// Nil fails the test if value is neither nil nor a nil pointer, slice, map,
// channel or function. Errors are printed with their stack trace.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if value == nil {
		return
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		if v.IsNil() {
			return
		}
	}
	t.Fatalf("want nil, got %+v", value)
}

// Equal fails the test if two values are not deeply equal. Raw bytes are
// printed in hex, the way addresses and hashes are displayed.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if reflect.DeepEqual(want, got) {
		return
	}
	t.Fatalf("values not equal\nwant %T %s\n got %T %s", want, show(want), got, show(got))
}

func show(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%v", v)
}

// IsErr fails the test unless got is of the kind of want. A registered error
// matches any error that wraps it or one of its children. Other errors must be
// the same instance.
func IsErr(t Tester, want, got error) {
	t.Helper()
	kind, ok := want.(*errors.Error)
	if !ok {
		if want != got {
			t.Fatalf("want %q, got %+v", want, got)
		}
		return
	}
	if !kind.Is(got) {
		t.Fatalf("want %q error (code %d), got %+v", kind.Error(), kind.Code(), got)
	}
}
