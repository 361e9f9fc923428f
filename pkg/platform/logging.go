package platform

import (
	"context"
	"time"

	"enginectl/pkg/logx"
)

// WithLogging logs every call at debug level in the "platform" domain.
func WithLogging() Option {
	return WithInterceptor(func(ctx context.Context, call Call, next Handler) error {
		start := time.Now()
		logx.Debug(ctx, "platform", "%s %s started", call.Op, call.Resource)
		err := next(ctx)
		if err != nil {
			logx.Debug(ctx, "platform", "%s %s failed after %s: %v", call.Op, call.Resource, time.Since(start), err)
			return err
		}
		logx.Debug(ctx, "platform", "%s %s completed in %s", call.Op, call.Resource, time.Since(start))
		return nil
	})
}
