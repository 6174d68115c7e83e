package broker

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kbroker/kbroker/internal/logstore"
	"github.com/kbroker/kbroker/internal/metadata"
)

// Broker owns the listening socket and the shared, read-only state every
// connection dispatches against.
type Broker struct {
	logger   *zap.Logger
	metadata *metadata.Metadata
	logs     *logstore.Store
}

// New builds a Broker ready to Serve. md and logs are shared read-only
// across every accepted connection; md is immutable once loaded, and logs
// guards its own cache with a mutex.
func New(logger *zap.Logger, md *metadata.Metadata, logs *logstore.Store) *Broker {
	return &Broker{logger: logger, metadata: md, logs: logs}
}

// Serve accepts connections on addr and runs each one on its own goroutine
// under an errgroup. Connection goroutines always report nil to the group;
// the group is used to close the listener when ctx is canceled and to wait
// for in-flight connections before returning. Serve blocks until ctx is
// canceled or the listener fails; it always returns a non-nil error.
func (b *Broker) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	b.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return b.ServeListener(ctx, ln)
}

// ServeListener runs the accept loop on an already-bound listener. Tests
// use this to bind to an ephemeral port and learn its address before
// handing the listener off to the blocking accept loop.
func (b *Broker) ServeListener(ctx context.Context, ln net.Listener) error {
	grp, grpCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		<-grpCtx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if grpCtx.Err() != nil {
				_ = grp.Wait()
				return grpCtx.Err()
			}
			return errors.Wrap(err, "accept")
		}

		grp.Go(func() error {
			b.serveConn(conn)
			return nil
		})
	}
}

func (b *Broker) serveConn(conn net.Conn) {
	logger := b.logger.With(zap.String("remote_addr", conn.RemoteAddr().String()))
	c := &connection{
		conn:     conn,
		logger:   logger,
		metadata: b.metadata,
		logs:     b.logs,
	}
	logger.Debug("connection accepted")
	c.serve()
	logger.Debug("connection closed")
}
