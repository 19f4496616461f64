// file: internals/features/policies/rate_limits/service/rate_limiter.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	policySvc "vulcan_backend/internals/features/policies/policies/service"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
)

const defaultPeriodHours = 24

// Limiter gates untrusted submission channels per (action, method, identifier).
//
// Policies:
//
//	{action}_rate_limit_{method}  maximum calls per window (required)
//	{action}_rate_period          window length in hours (default 24)
type Limiter struct {
	Policies policySvc.Store
	Counters CounterStore
	log      zerolog.Logger
}

func NewLimiter(policies policySvc.Store, counters CounterStore) *Limiter {
	return &Limiter{Policies: policies, Counters: counters, log: logger.For("rate_limit")}
}

func CounterKey(action, method, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", action, method, identifier)
}

func MaxPolicyKey(action, method string) string {
	return fmt.Sprintf("%s_rate_limit_%s", action, method)
}

func PeriodPolicyKey(action string) string {
	return action + "_rate_period"
}

// Check counts one call and returns the counter value after it.
// RateLimitExceeded once the count has reached max; UnknownAction when no
// max policy exists for (action, method). A counter store outage lets the
// call through.
func (l *Limiter) Check(ctx context.Context, action, identifier, method string) (int64, error) {
	action = strings.TrimSpace(action)
	method = strings.ToLower(strings.TrimSpace(method))

	limit, ok, err := l.Policies.Get(ctx, MaxPolicyKey(action, method))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &apperr.UnknownAction{Action: action, Method: method}
	}
	period := time.Duration(policySvc.IntOr(ctx, l.Policies, PeriodPolicyKey(action), defaultPeriodHours)) * time.Hour

	count, allowed, err := l.Counters.Increment(ctx, CounterKey(action, method, identifier), limit, period)
	if err != nil {
		l.log.Warn().Err(err).Str("action", action).Str("method", method).Msg("counter store unavailable, allowing")
		metrics.RecordAuditFailure("rate_limit_counter")
		return 0, nil
	}
	if !allowed {
		metrics.RecordRateLimitRejection(action, method)
		return count, &apperr.RateLimitExceeded{Action: action, Method: method, Max: limit, Period: period}
	}
	return count, nil
}
