package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/api"
)

// ErrorHandlingMiddleware recovers panics and answers with api.ErrorResponse, status from the kerror code.
func ErrorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		startMs := kcommon.GetMonoTimeMs()
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			elapsedMs := kcommon.GetMonoTimeMs() - startMs
			var ke *kerror.Kerror
			switch v := p.(type) {
			case *kerror.Kerror:
				ke = v
			case error:
				ke = kerror.Wrap(v, "InternalServerError", "an unexpected error occurred", false).WithErrorCode(kerror.EC_UNKNOWN)
			default:
				ke = kerror.Create("UnknownPanic", "unexpected panic with non-error value").
					WithErrorCode(kerror.EC_UNKNOWN).
					With("panic_value", v)
			}
			status := ke.ErrorCode.ToHttpErrorCode()
			// client mistakes are expected traffic, the rest is worth an error line
			logger := klogging.Error
			if status < 500 && ke.ErrorCode != kerror.EC_PRECONDITION_FAILED {
				logger = klogging.Info
			}
			logger(r.Context()).WithError(ke).With("elapsedMs", elapsedMs).With("status", status).Log("RequestFailed", "")

			w.WriteHeader(status)
			json.NewEncoder(w).Encode(&api.ErrorResponse{
				Error: ke.Type,
				Msg:   ke.Msg,
				Code:  string(ke.ErrorCode),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
