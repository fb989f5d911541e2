package net

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DialRetryInterval is the cadence at which clients re-attempt to reach the
// hub until it is up.
const DialRetryInterval = 1500 * time.Millisecond

// DialRetry dials the hub, retrying on the fixed cadence until it succeeds
// or shutdownCh closes. It makes process start order irrelevant: a node can
// come up before its hub.
func DialRetry(dial Dialer, timeout time.Duration, shutdownCh <-chan struct{}, logger *logrus.Entry) (Conn, error) {
	for {
		conn, err := dial(timeout)
		if err == nil {
			return conn, nil
		}

		logger.WithField("error", err).Debug("Hub not reachable, retrying")

		select {
		case <-time.After(DialRetryInterval):
		case <-shutdownCh:
			return nil, ErrLayerClosed
		}
	}
}
