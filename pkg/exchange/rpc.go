// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exchange

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/cluster"
	rrpc "github.com/logrange/range/pkg/rpc"
	"github.com/logrange/range/pkg/transport"
	"github.com/logrange/range/pkg/utils/bytes"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type (
	// RpcExchanger implements Exchanger over RPC connections between the
	// sites. Every site runs an RPC server, which receives the buffers the
	// other sites push to it. Buffers of rounds which are not started
	// locally yet are kept in the inbox until the round starts.
	RpcExchanger struct {
		rank    cluster.Rank
		peers   []cluster.HostAddr
		tcfg    transport.Config
		logger  log4g.Logger
		closeCh chan struct{}

		rs rrpc.Server
		ln net.Listener

		clients []*peerClient

		lock   sync.Mutex
		inbox  map[uint64]*inRound
		round  uint64
		closed bool
	}

	peerClient struct {
		lock sync.Mutex
		cfg  transport.Config
		rc   rrpc.Client
	}

	inRound struct {
		bufs [][]byte
		recv []bool
		got  int
		ch   chan struct{}
	}

	// pushMsg is the buffer the site src sends to a peer in the round
	pushMsg struct {
		round uint64
		src   uint32
		buf   []byte
	}

	emptyResponse int
)

// RPC endpoints
const (
	cRpcEpPush = 1
)

const cEmptyResponse = emptyResponse(0)

// ConnectRetryTimeout is the pause between attempts to connect to a peer,
// which is not listening yet.
var ConnectRetryTimeout = 200 * time.Millisecond

// NewRpcExchanger creates the exchanger for the site rank of the group which
// sites listen on peers addresses. tcfg contains the TLS settings for both
// the server and client connections.
func NewRpcExchanger(rank cluster.Rank, peers []cluster.HostAddr, tcfg transport.Config) *RpcExchanger {
	e := new(RpcExchanger)
	e.rank = rank
	e.peers = peers
	e.tcfg = tcfg
	e.inbox = make(map[uint64]*inRound)
	e.closeCh = make(chan struct{})
	e.logger = log4g.GetLogger("exchange.rpc").WithId("{" + rank.String() + "}").(log4g.Logger)
	e.clients = make([]*peerClient, len(peers))
	for i, p := range peers {
		pc := &peerClient{cfg: tcfg}
		pc.cfg.ListenAddr = string(p)
		e.clients[i] = pc
	}
	return e
}

// Init is part of linker.Initializer. It starts the RPC server.
func (e *RpcExchanger) Init(ctx context.Context) error {
	if err := e.rank.Check(len(e.peers)); err != nil {
		return err
	}

	lcfg := e.tcfg
	if lcfg.ListenAddr == "" {
		lcfg.ListenAddr = string(e.peers[e.rank])
	}
	l, err := transport.NewServerListener(lcfg)
	if err != nil {
		return errors.Wrapf(err, "Could not create transport listener for %s", lcfg)
	}
	e.ln = l
	e.rs = rrpc.NewServer()
	e.rs.Register(cRpcEpPush, e.onPush)

	go e.listen()
	e.logger.Info("Init(): listening on ", lcfg.ListenAddr, ", group size is ", len(e.peers))
	return nil
}

// Shutdown is part of linker.Shutdowner
func (e *RpcExchanger) Shutdown() {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return
	}
	e.closed = true
	close(e.closeCh)
	e.lock.Unlock()

	if e.rs != nil {
		e.rs.Close()
		e.ln.Close()
	}
	for _, pc := range e.clients {
		pc.close()
	}
	e.logger.Info("Shutdown()")
}

func (e *RpcExchanger) Rank() cluster.Rank {
	return e.rank
}

func (e *RpcExchanger) Size() int {
	return len(e.peers)
}

func (e *RpcExchanger) AllToAll(ctx context.Context, out [][]byte) ([][]byte, error) {
	n := len(e.peers)
	if len(out) != n {
		return nil, fmt.Errorf("AllToAll(): expected %d buffers, but got %d", n, len(out))
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return nil, rerrors.ClosedState
	}
	id := e.round
	e.round++
	r := e.getRound(id)
	e.lock.Unlock()

	var sent int
	g, gctx := errgroup.WithContext(ctx)
	for dst := range out {
		if cluster.Rank(dst) == e.rank {
			continue
		}
		dst := dst
		sent += len(out[dst])
		g.Go(func() error {
			return e.push(gctx, dst, &pushMsg{round: id, src: uint32(e.rank), buf: out[dst]})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	select {
	case <-r.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closeCh:
		return nil, rerrors.ClosedState
	}

	e.lock.Lock()
	delete(e.inbox, id)
	e.lock.Unlock()

	in := r.bufs
	in[e.rank] = out[e.rank]
	var rcvd int
	for _, b := range in {
		rcvd += len(b)
	}
	e.logger.Debug("AllToAll(): round ", id, " is done, sent ", humanize.Bytes(uint64(sent)), ", received ",
		humanize.Bytes(uint64(rcvd-len(out[e.rank]))))
	return in, nil
}

// getRound must be called under the lock
func (e *RpcExchanger) getRound(id uint64) *inRound {
	r, ok := e.inbox[id]
	if !ok {
		n := len(e.peers)
		r = &inRound{bufs: make([][]byte, n), recv: make([]bool, n), ch: make(chan struct{})}
		if n == 1 {
			close(r.ch)
		}
		e.inbox[id] = r
	}
	return r
}

func (e *RpcExchanger) push(ctx context.Context, dst int, pm *pushMsg) error {
	pc := e.clients[dst]
	rc, err := pc.connect(ctx)
	if err != nil {
		return errors.Wrapf(err, "could not connect to site %d at %s", dst, pc.cfg.ListenAddr)
	}

	resp, opErr, err := rc.Call(ctx, cRpcEpPush, pm)
	if err != nil {
		pc.close()
		return errors.Wrapf(err, "could not push round %d buffer to site %d", pm.round, dst)
	}
	rc.Collect(resp)
	if opErr != nil {
		return errors.Wrapf(opErr, "site %d could not accept round %d buffer", dst, pm.round)
	}
	return nil
}

func (e *RpcExchanger) onPush(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	pm, err := unmarshalPushMsg(reqBody)
	sc.Collect(reqBody)
	if err == nil {
		err = e.deliver(pm)
	}
	if err != nil {
		e.logger.Warn("onPush(): could not accept the buffer, err=", err)
	}
	sc.SendResponse(reqId, err, cEmptyResponse)
}

func (e *RpcExchanger) deliver(pm pushMsg) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	src := int(pm.src)
	if src >= len(e.peers) || cluster.Rank(src) == e.rank {
		return fmt.Errorf("unexpected source site %d", src)
	}
	if _, ok := e.inbox[pm.round]; !ok && pm.round < e.round {
		return fmt.Errorf("round %d from site %d is already over", pm.round, src)
	}
	r := e.getRound(pm.round)
	if r.recv[src] {
		return fmt.Errorf("duplicate buffer of round %d from site %d", pm.round, src)
	}
	r.recv[src] = true
	r.bufs[src] = pm.buf
	r.got++
	if r.got == len(e.peers)-1 {
		close(r.ch)
	}
	return nil
}

func (e *RpcExchanger) listen() {
	e.logger.Info("listen(): start")
	defer e.logger.Info("listen(): stop")
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			e.logger.Warn("listen(): got the error when listen socket err=", err)
			return
		}

		err = e.rs.Serve(conn.RemoteAddr().String(), conn)
		if err != nil {
			e.logger.Warn("listen(): could not create new server connection for ", conn.RemoteAddr(), " err=", err)
			conn.Close()
		}
	}
}

// connect returns the connected client. It retries until the peer accepts
// the connection or ctx is closed.
func (pc *peerClient) connect(ctx context.Context) (rrpc.Client, error) {
	pc.lock.Lock()
	defer pc.lock.Unlock()
	if pc.rc != nil {
		return pc.rc, nil
	}

	for {
		conn, err := transport.NewClientConn(pc.cfg)
		if err == nil {
			pc.rc = rrpc.NewClient(conn)
			return pc.rc, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "last connect error: %s", err)
		case <-time.After(ConnectRetryTimeout):
		}
	}
}

func (pc *peerClient) close() {
	pc.lock.Lock()
	if pc.rc != nil {
		pc.rc.Close()
		pc.rc = nil
	}
	pc.lock.Unlock()
}

func (pm *pushMsg) WritableSize() int {
	return 8 + 4 + xbinary.WritebleBytesSize(pm.buf)
}

func (pm *pushMsg) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	n, err := ow.WriteUint64(pm.round)
	nn := n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteUint32(pm.src)
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteBytes(pm.buf)
	nn += n
	return nn, err
}

func unmarshalPushMsg(buf []byte) (pushMsg, error) {
	var pm pushMsg
	idx, round, err := xbinary.UnmarshalUint64(buf)
	if err != nil {
		return pm, err
	}
	n, src, err := xbinary.UnmarshalUint32(buf[idx:])
	if err != nil {
		return pm, err
	}
	idx += n
	// buf goes back to the rpc pool after the call
	_, body, err := xbinary.UnmarshalBytes(buf[idx:], false)
	pm.buf = bytes.BytesCopy(body)
	pm.round = round
	pm.src = src
	return pm, err
}

func (er emptyResponse) WritableSize() int {
	return 0
}

func (er emptyResponse) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	return 0, nil
}
