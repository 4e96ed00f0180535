package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-cd/pkg/logging"
)

const (
	requestSize = 12
	replySize   = 8

	DefaultReduceTimeout = 30 * time.Second
)

// NNGConfig describes one rank of a multi-process reduction. Rank 0 listens on
// Address, every other rank dials it.
type NNGConfig struct {
	Address string
	Rank    int
	Size    int
	// Timeout bounds one reduction when the context has no deadline.
	Timeout time.Duration
	Logger  logging.Logger
}

// NNG reduces over a mangos REQ/REP star. Rank 0 receives one request per
// peer through its own REP context, sums in rank order and answers everyone.
type NNG struct {
	cfg    NNGConfig
	logger logging.Logger
	sock   mangos.Socket
	ctxs   []mangos.Context
}

func NewNNG(cfg NNGConfig) (*NNG, error) {
	if cfg.Size < 1 || cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrInvalidRank, cfg.Rank, cfg.Size)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReduceTimeout
	}
	n := &NNG{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger).With(logging.Component("comm"), logging.Rank(cfg.Rank)),
	}

	cleanup := newResourceCleanup(n.logger)
	defer cleanup.Cleanup()

	if cfg.Rank == 0 {
		sock, err := rep.NewSocket()
		if err != nil {
			return nil, fmt.Errorf("failed to create REP socket: %w", err)
		}
		cleanup.Add(sock, "reduce root")
		for range cfg.Size - 1 {
			c, err := sock.OpenContext()
			if err != nil {
				return nil, fmt.Errorf("failed to open REP context: %w", err)
			}
			n.ctxs = append(n.ctxs, c)
		}
		if err := sock.Listen(cfg.Address); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
		}
		n.sock = sock
	} else {
		sock, err := req.NewSocket()
		if err != nil {
			return nil, fmt.Errorf("failed to create REQ socket: %w", err)
		}
		cleanup.Add(sock, "reduce peer")
		// A resent request would be counted twice.
		if err := sock.SetOption(mangos.OptionRetryTime, time.Duration(0)); err != nil {
			return nil, err
		}
		if err := sock.Dial(cfg.Address); err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", cfg.Address, err)
		}
		n.sock = sock
	}

	cleanup.Clear()
	n.logger.Debug("reducer connected", logging.String("address", cfg.Address), logging.Count(cfg.Size))
	return n, nil
}

func (n *NNG) Rank() int { return n.cfg.Rank }
func (n *NNG) Size() int { return n.cfg.Size }

func (n *NNG) Close() error {
	return n.sock.Close()
}

func (n *NNG) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if dl, ok := ctx.Deadline(); ok {
		return max(time.Until(dl), time.Millisecond), nil
	}
	return n.cfg.Timeout, nil
}

func (n *NNG) AllReduceSum(ctx context.Context, v float64) (float64, error) {
	if n.cfg.Size == 1 {
		return v, nil
	}
	timeout, err := n.timeout(ctx)
	if err != nil {
		return 0, err
	}
	if n.cfg.Rank == 0 {
		return n.gather(timeout, v)
	}
	return n.request(timeout, v)
}

func (n *NNG) gather(timeout time.Duration, v float64) (float64, error) {
	values := make([]float64, n.cfg.Size)
	seen := make([]bool, n.cfg.Size)
	values[0] = v
	for _, c := range n.ctxs {
		if err := c.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
			return 0, err
		}
		msg, err := c.Recv()
		if err != nil {
			return 0, fmt.Errorf("reduce: receive: %w", err)
		}
		rank, x, err := decodeRequest(msg)
		if err != nil {
			return 0, err
		}
		if rank < 1 || rank >= n.cfg.Size || seen[rank] {
			return 0, fmt.Errorf("reduce: %w: %d", ErrInvalidRank, rank)
		}
		seen[rank] = true
		values[rank] = x
	}

	var sum float64
	for _, x := range values {
		sum += x
	}
	reply := make([]byte, replySize)
	binary.BigEndian.PutUint64(reply, math.Float64bits(sum))
	for _, c := range n.ctxs {
		if err := c.SetOption(mangos.OptionSendDeadline, timeout); err != nil {
			return 0, err
		}
		if err := c.Send(reply); err != nil {
			return 0, fmt.Errorf("reduce: reply: %w", err)
		}
	}
	return sum, nil
}

func (n *NNG) request(timeout time.Duration, v float64) (float64, error) {
	if err := n.sock.SetOption(mangos.OptionSendDeadline, timeout); err != nil {
		return 0, err
	}
	if err := n.sock.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
		return 0, err
	}
	if err := n.sock.Send(encodeRequest(n.cfg.Rank, v)); err != nil {
		return 0, fmt.Errorf("reduce: send: %w", err)
	}
	msg, err := n.sock.Recv()
	if err != nil {
		return 0, fmt.Errorf("reduce: receive: %w", err)
	}
	if len(msg) != replySize {
		return 0, fmt.Errorf("reduce: reply of %d bytes", len(msg))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(msg)), nil
}

func encodeRequest(rank int, v float64) []byte {
	buf := make([]byte, requestSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(rank))
	binary.BigEndian.PutUint64(buf[4:12], math.Float64bits(v))
	return buf
}

func decodeRequest(buf []byte) (int, float64, error) {
	if len(buf) != requestSize {
		return 0, 0, fmt.Errorf("reduce: request of %d bytes", len(buf))
	}
	return int(binary.BigEndian.Uint32(buf[0:4])), math.Float64frombits(binary.BigEndian.Uint64(buf[4:12])), nil
}
