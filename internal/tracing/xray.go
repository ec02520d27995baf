// Package tracing provides AWS X-Ray distributed tracing integration.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/strategy/sampling"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/aws/aws-xray-sdk-go/xraylog"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/config"
)

// Logger adapter for X-Ray SDK.
type xrayLoggerAdapter struct {
	logger *logrus.Entry
}

func (l *xrayLoggerAdapter) Log(level xraylog.LogLevel, msg fmt.Stringer) {
	switch level {
	case xraylog.LogLevelDebug:
		l.logger.Debug(msg.String())
	case xraylog.LogLevelInfo:
		l.logger.Info(msg.String())
	case xraylog.LogLevelWarn:
		l.logger.Warn(msg.String())
	case xraylog.LogLevelError:
		l.logger.Error(msg.String())
	}
}

// samplingRules renders a localized rule set with one default rule
func samplingRules(rate float64) []byte {
	return []byte(fmt.Sprintf(`{"version": 2, "rules": [], "default": {"fixed_target": 1, "rate": %g}}`, rate))
}

// Initialize configures the X-Ray recorder. It is a no-op when tracing is disabled.
func Initialize(cfg config.TracingConfig, serviceName string, logger *logrus.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	xray.SetLogger(&xrayLoggerAdapter{logger: logger.WithField("component", "xray")})

	strategy, err := sampling.NewLocalizedStrategyFromJSONBytes(samplingRules(cfg.SamplingRate))
	if err != nil {
		return fmt.Errorf("failed to build sampling strategy: %w", err)
	}

	if err := xray.Configure(xray.Config{
		DaemonAddr:             cfg.DaemonAddr,
		ServiceVersion:         serviceName,
		SamplingStrategy:       strategy,
		ContextMissingStrategy: ctxmissing.NewDefaultLogErrorStrategy(),
	}); err != nil {
		return fmt.Errorf("failed to configure x-ray: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"daemon_addr":   cfg.DaemonAddr,
		"sampling_rate": cfg.SamplingRate,
		"service_name":  serviceName,
	}).Info("AWS X-Ray initialized")

	return nil
}

// Middleware wraps next in an X-Ray segment named name
func Middleware(name string) func(http.Handler) http.Handler {
	namer := xray.NewFixedSegmentNamer(name)
	return func(next http.Handler) http.Handler {
		return xray.Handler(namer, next)
	}
}

// StartSubsegment starts a subsegment when ctx carries a segment.
// The returned end function is always safe to call.
func StartSubsegment(ctx context.Context, name string) (context.Context, func(error)) {
	if xray.GetSegment(ctx) == nil {
		return ctx, func(error) {}
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return ctx, func(error) {}
	}
	return ctx, func(err error) { seg.Close(err) }
}

// AddAnnotation adds an annotation to the current segment.
func AddAnnotation(ctx context.Context, key string, value interface{}) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}

// AddError adds an error to the current segment.
func AddError(ctx context.Context, err error) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddError(err)
	}
}
