package kcommon

import (
	"context"
	"fmt"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

// TryCatchRun converts a panic inside fn into a returned *kerror.Kerror.
func TryCatchRun(ctx context.Context, fn func()) (ret *kerror.Kerror) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ke, ok := r.(*kerror.Kerror); ok {
			ret = ke
		} else if err, ok := r.(error); ok {
			ret = kerror.Wrap(err, "UnknownError", "", true).WithErrorCode(kerror.EC_INTERNAL_ERROR)
		} else {
			// non-error panics are a programming mistake, keep them loud
			klogging.Error(ctx).WithPanic(r).Log("NonErrorPanic", "")
			ret = kerror.Create("NonErrorPanic", fmt.Sprintf("%v", r)).WithErrorCode(kerror.EC_INTERNAL_ERROR)
		}
	}()
	fn()
	return
}

// TryCatchRunErr is TryCatchRun for callers that return a plain error.
func TryCatchRunErr(ctx context.Context, fn func()) error {
	if ke := TryCatchRun(ctx, fn); ke != nil {
		return ke
	}
	return nil
}
