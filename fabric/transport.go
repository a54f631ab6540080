package fabric

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"go.etcd.io/etcd/raft/v3/raftpb"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/polydawn/capsule/api/def"
)

// Transport is the fabric's multiplexed node-to-node channel, TLS-encrypted
// when built with a tls.Config and plaintext when built with nil (as
// cmd/capsulectl builds it): one grpc.ClientConn per peer, reused across every resolver
// query and service-registry push that addresses it, with a bounded
// outbound queue per peer so one slow peer can't back up every other
// conversation this node is having, and a per-peer rate limiter so a
// resolver retry storm against one flaky peer can't starve queries to
// everyone else.
type Transport struct {
	tlsConfig  *tls.Config
	queueCap   int
	queryRate  rate.Limit
	queryBurst int

	mu    sync.Mutex
	conns map[string]*peerConn
	log   log15.Logger

	inflight singleflight.Group
}

type peerConn struct {
	conn    *grpc.ClientConn
	queue   chan func()
	limiter *rate.Limiter
}

func NewTransport(tlsConfig *tls.Config, queueCap int) *Transport {
	if queueCap <= 0 {
		queueCap = 64
	}
	return &Transport{
		tlsConfig:  tlsConfig,
		queueCap:   queueCap,
		queryRate:  rate.Limit(20),
		queryBurst: 5,
		conns:      make(map[string]*peerConn),
		log:        log15.New("module", "fabric.transport"),
	}
}

func (t *Transport) dial(addr string) (*peerConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pc, ok := t.conns[addr]; ok {
		return pc, nil
	}

	var creds credentials.TransportCredentials
	if t.tlsConfig != nil {
		creds = credentials.NewTLS(t.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, ConnectionFailed.Wrap(err)
	}

	pc := &peerConn{
		conn:    conn,
		queue:   make(chan func(), t.queueCap),
		limiter: rate.NewLimiter(t.queryRate, t.queryBurst),
	}
	go pc.drain()
	t.conns[addr] = pc
	return pc, nil
}

func (pc *peerConn) drain() {
	for fn := range pc.queue {
		fn()
	}
}

// Send enqueues a unit of work against a peer's connection without
// blocking the caller beyond the queue's capacity; a full queue is
// reported as backpressure rather than silently dropped or blocked
// forever.
func (t *Transport) Send(peerAddr string, work func(conn *grpc.ClientConn)) error {
	pc, err := t.dial(peerAddr)
	if err != nil {
		return err
	}
	select {
	case pc.queue <- func() { work(pc.conn) }:
		return nil
	default:
		return BackpressureExceeded.New("outbound queue to %s is full (cap %d)", peerAddr, t.queueCap)
	}
}

// QueryPeer satisfies PeerQuerier by making a synchronous round trip
// through the same queued/backpressure-aware Send path, bridging the
// async queue back into the blocking resolver call via a result channel.
// Identical concurrent queries (same peer, same name) are collapsed
// into one outbound call via singleflight, since a resolver cache miss
// on a popular name tends to arrive as a burst rather than a single
// call.
func (t *Transport) QueryPeer(ctx context.Context, peerAddr, name string) ([]def.ServiceEndpoint, error) {
	type result struct {
		eps []def.ServiceEndpoint
		err error
	}

	v, err, _ := t.inflight.Do(peerAddr+"|"+name, func() (interface{}, error) {
		pc, err := t.dial(peerAddr)
		if err != nil {
			return nil, err
		}
		if err := pc.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resCh := make(chan result, 1)
		sendErr := t.Send(peerAddr, func(conn *grpc.ClientConn) {
			eps, err := queryPeerRPC(ctx, conn, name)
			resCh <- result{eps, err}
		})
		if sendErr != nil {
			return nil, sendErr
		}

		select {
		case res := <-resCh:
			return res.eps, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return nil, ConnectionFailed.New("peer %s did not respond within 10s", peerAddr)
		}
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]def.ServiceEndpoint), nil
}

// StepPeer delivers a raft message to the node listening at peerAddr,
// queued through the same backpressure-aware Send path every other
// outbound conversation with that peer uses. It doesn't wait for the
// peer to finish applying the message -- raft's own retry/resend logic
// on the next Ready() covers a dropped or failed delivery -- so a send
// failure here is logged, not returned up through the caller's tick loop.
func (t *Transport) StepPeer(peerAddr string, msg raftpb.Message) {
	err := t.Send(peerAddr, func(conn *grpc.ClientConn) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stepPeerRPC(ctx, conn, msg); err != nil {
			t.log.Warn("raft step delivery failed", "peer", peerAddr, "err", err)
		}
	})
	if err != nil {
		t.log.Warn("raft step enqueue failed", "peer", peerAddr, "err", err)
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, pc := range t.conns {
		close(pc.queue)
		pc.conn.Close()
		delete(t.conns, addr)
	}
	return nil
}
