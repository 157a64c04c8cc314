// Package throttle rate-limits outbound connection attempts using a
// token-bucket algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Create a [Limiter] and call Wait before each hop:
//
//	lim, err := throttle.New(
//		10, // hops per second
//		5,  // burst capacity
//		func() *slog.Logger { return slog.Default() },
//	)
//	if err := lim.Wait(ctx); err != nil {
//		return err
//	}
//
// When the rate limit is exceeded, Wait blocks until a token becomes
// available or the context is cancelled. Every redirect hop consumes
// its own token.
package throttle
