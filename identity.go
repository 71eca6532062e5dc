package safeinterval

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// resolveIdentity returns the stable identity key for a singleton
// registration. An explicit key always wins. Without one, the resolver falls
// back to the callable's code pointer: reference-equal callables (the same
// named function, the same stored func value) resolve to the same identity.
//
// Caveat of the fallback: distinct closures created from the same func
// literal share a code pointer and therefore collapse into one identity,
// while two structurally identical literals at different source sites stay
// distinct. Callers who need either behavior changed should pass an explicit
// key.
func resolveIdentity(key string, fn schedule.Callable) (string, error) {
	if key != "" {
		return key, nil
	}
	if fn == nil {
		return "", ErrNilCallable
	}

	pc := reflect.ValueOf(fn).Pointer()
	name := "anonymous"
	if f := runtime.FuncForPC(pc); f != nil {
		name = f.Name()
	}
	return fmt.Sprintf("fn:%s@%x", name, pc), nil
}
