package schema

import (
	"time"

	"github.com/dop251/goja"
)

// checkTimeout bounds a single check expression.
const checkTimeout = 100 * time.Millisecond

func compileCheck(path, src string) (*goja.Program, error) {
	return goja.Compile(path, src, true)
}

// runCheck evaluates a compiled check with the field value bound to `value`.
// goja runtimes are not goroutine safe, so each run gets its own.
func runCheck(prog *goja.Program, value any) (bool, error) {
	vm := goja.New()
	if err := vm.Set("value", value); err != nil {
		return false, err
	}
	timer := time.AfterFunc(checkTimeout, func() {
		vm.Interrupt("check timed out")
	})
	defer timer.Stop()

	result, err := vm.RunProgram(prog)
	if err != nil {
		return false, err
	}
	return result.ToBoolean(), nil
}
