package errors

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Response writes the client-facing form of err. The body carries only the
// generic message for the error kind; internal detail is expected to be
// logged by the caller before calling Response.
func Response(ctx *gin.Context, err error) {
	kind := KindOf(err)
	status := httpStatus(kind)

	if kind == KindAdmissionDenied {
		if retryAfter := RetryAfterOf(err); retryAfter > 0 {
			ctx.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	ctx.AbortWithStatusJSON(status, gin.H{"error": clientMessage(kind)})
}

func httpStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInactive:
		return http.StatusServiceUnavailable
	case KindMalformedProof, KindVerificationFailed:
		return http.StatusPaymentRequired
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindAdmissionDenied:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
