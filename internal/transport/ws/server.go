package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"heightmap.ai/internal/pipeline"
	"heightmap.ai/internal/protocol"
	"heightmap.ai/internal/sim/encoding"
	"heightmap.ai/internal/sim/terrain/gen"
	"heightmap.ai/internal/sim/tuning"
)

type Server struct {
	runner *pipeline.Runner
	base   tuning.Tuning
	log    *log.Logger

	upgrader websocket.Upgrader
	active   atomic.Int64

	// ctx is cancelled by Shutdown; hijacked connections outlive the
	// http.Server's own shutdown.
	ctx      context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewServer streams generations run by r. Requests are overlaid on base.
func NewServer(r *pipeline.Runner, base tuning.Tuning, logger *log.Logger) *Server {
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		ctx:    ctx,
		stop:   stop,
		runner: r,
		base:   base,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// ActiveConns reports the number of open websocket sessions.
func (s *Server) ActiveConns() int64 { return s.active.Load() }

// Shutdown refuses new generations, aborts running ones between rounds and
// waits for them to return, so the pipeline's sinks can be closed after it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.active.Add(1)
		defer s.active.Add(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stopOnShutdown := context.AfterFunc(s.ctx, cancel)
		defer stopOnShutdown()

		out := make(chan []byte, 64)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						writeErr <- err
						return
					}
				}
			}
		}()

		send := func(v any) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return false
			}
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Reader loop: one GENERATE at a time.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeGenerate {
				if !send(protocol.NewError(base.RequestID, &protocol.RequestError{Code: protocol.ErrProtoBadRequest, Err: errExpectedGenerate})) {
					break
				}
				continue
			}
			if !s.generate(ctx, msg, send) {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

var errExpectedGenerate = errors.New("expected GENERATE")

// generate runs one request and streams ROUND messages then RESULT or ERROR.
// It reports false once the connection is gone.
func (s *Server) generate(ctx context.Context, msg []byte, send func(any) bool) bool {
	req, err := protocol.DecodeGenerate(msg)
	if err != nil {
		return send(protocol.NewError(req.RequestID, err))
	}
	t := req.Apply(s.base)

	if !s.begin() {
		return false
	}
	defer s.inflight.Done()

	var rounds int
	if sz, err := gen.SizeFor(t.Width, t.Height, t.MaxSizeExponent); err == nil {
		rounds = sz.Exponent
	}
	res, err := s.runner.Run(ctx, pipeline.Request{
		Tuning: t,
		OnRound: func(rep gen.RoundReport) {
			send(protocol.NewRound(req.RequestID, rounds, rep))
		},
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return send(protocol.NewError(req.RequestID, err))
	}
	return send(protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		RequestID:       req.RequestID,
		RunID:           res.RunID,
		Seed:            res.Seed,
		Width:           res.Heightmap.Width,
		Height:          res.Heightmap.Height,
		GridSize:        res.Sizing.Size,
		Rounds:          res.Rounds,
		Digest:          res.Digest,
		Min:             res.Min,
		Max:             res.Max,
		Encoding:        encoding.EncodingF32,
		Data:            encoding.EncodeHeights(res.Heightmap.Values()),
	})
}
