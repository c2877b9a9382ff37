package noise

import (
	"context"
	"time"

	"github.com/go-i2p/go-noise/internal"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// maxRetryDelay caps the exponential backoff between handshake attempts.
const maxRetryDelay = 30 * time.Second

// HandshakeWithRetry performs a handshake, retrying failed attempts with
// exponential backoff as configured by HandshakeRetries and RetryBackoff.
// Every attempt starts over from the first handshake message.
func (nc *NoiseConn) HandshakeWithRetry(ctx context.Context) error {
	if nc.config.HandshakeRetries == 0 {
		return nc.Handshake(ctx)
	}

	maxRetries := nc.config.HandshakeRetries
	for attempt := 0; ; attempt++ {
		err := nc.Handshake(ctx)
		if err == nil {
			if attempt > 0 {
				nc.logger.WithFields(logrus.Fields{
					"attempts": attempt + 1,
					"protocol": nc.config.ProtocolName,
				}).Info("Handshake succeeded after retries")
			}
			return nil
		}

		if !nc.shouldRetry(attempt, maxRetries) {
			return nc.wrapRetryError(err, attempt+1)
		}

		if waitErr := nc.waitForRetry(ctx, attempt); waitErr != nil {
			return nc.wrapRetryError(waitErr, attempt+1)
		}

		nc.logger.WithFields(logrus.Fields{
			"attempt":    attempt + 2,
			"protocol":   nc.config.ProtocolName,
			"last_error": err.Error(),
		}).Warn("Handshake failed, retrying")
	}
}

// shouldRetry reports whether another attempt is allowed. Handshake puts
// the connection back into the init state after a recoverable failure.
func (nc *NoiseConn) shouldRetry(attempt, maxRetries int) bool {
	if maxRetries != -1 && attempt >= maxRetries {
		return false
	}
	return nc.getState() == internal.StateInit
}

// retryDelay returns backoff * 2^attempt, capped at maxRetryDelay.
func retryDelay(backoff time.Duration, attempt int) time.Duration {
	if backoff <= 0 {
		return 0
	}
	delay := backoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// waitForRetry sleeps for the backoff delay or until ctx is done.
func (nc *NoiseConn) waitForRetry(ctx context.Context, attempt int) error {
	delay := retryDelay(nc.config.RetryBackoff, attempt)
	if delay == 0 {
		return ctx.Err()
	}

	nc.logger.WithFields(logrus.Fields{
		"attempt":  attempt + 1,
		"delay":    delay,
		"protocol": nc.config.ProtocolName,
	}).Debug("Waiting before handshake retry")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (nc *NoiseConn) wrapRetryError(err error, attempts int) error {
	return oops.
		Code("HANDSHAKE_RETRY_FAILED").
		In("noise").
		With("attempts", attempts).
		With("max_retries", nc.config.HandshakeRetries).
		With("protocol", nc.config.ProtocolName).
		With("remote_addr", nc.RemoteAddr().String()).
		Wrapf(err, "handshake failed after %d attempts", attempts)
}
