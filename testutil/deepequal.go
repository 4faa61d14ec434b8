package testutil

import (
	"fmt"
	"reflect"

	"github.com/andreyvit/diff"
)

// DeepEqual is reflect.DeepEqual plus an optional trace describing the
// first difference found, as a line diff of the two values.
func DeepEqual(x, y interface{}, trc ...*string) bool {
	if len(trc) > 1 {
		panic("testutil.DeepEqual: more than one optional argument")
	}

	eq := reflect.DeepEqual(x, y)
	if !eq && len(trc) == 1 && trc[0] != nil {
		*trc[0] = diff.LineDiff(fmt.Sprintf("%#v", x), fmt.Sprintf("%#v", y))
	}
	return eq
}
