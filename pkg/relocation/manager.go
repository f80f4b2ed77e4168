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

package relocation

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/exchange"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type (
	// State of the Manager
	State int

	// Manager accumulates relocation requests of the local site and executes
	// them in Sync. Sync is a collective operation: every site of the group
	// must call it, even with no requests queued.
	Manager struct {
		ex     exchange.Exchanger
		reg    *Registry
		logger log4g.Logger

		lock   sync.Mutex
		state  State
		queues [][]request
	}

	request struct {
		tag string
		ser Serializer
	}
)

const (
	StateIdle State = iota
	StateAccumulating
	StateExchanging
)

// buffer status
const (
	statusOk byte = iota
	statusAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateExchanging:
		return "EXCHANGING"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// NewManager returns the manager which executes requests over ex, finding
// deserializers in reg.
func NewManager(ex exchange.Exchanger, reg *Registry) *Manager {
	m := new(Manager)
	m.ex = ex
	m.reg = reg
	m.queues = make([][]request, ex.Size())
	m.logger = log4g.GetLogger("relocation").WithId("{" + ex.Rank().String() + "}").(log4g.Logger)
	return m
}

func (m *Manager) Rank() cluster.Rank {
	return m.ex.Rank()
}

func (m *Manager) Size() int {
	return m.ex.Size()
}

func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// Pending returns number of requests queued for the site dest
func (m *Manager) Pending(dest cluster.Rank) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	if dest.Check(len(m.queues)) != nil {
		return 0
	}
	return len(m.queues[dest])
}

// Request queues the serializer ser for the site dest. The data will be read
// on dest by the deserializer registered with the tag. Requests to the same
// destination are executed in the order they were queued.
func (m *Manager) Request(dest cluster.Rank, tag string, ser Serializer) error {
	if err := dest.Check(m.ex.Size()); err != nil {
		return err
	}
	if dest == m.ex.Rank() {
		return fmt.Errorf("site %d could not relocate data to itself", dest)
	}
	if _, ok := m.reg.Get(tag); !ok {
		return errors.Wrapf(rerrors.NotFound, "no deserializer for tag %q", tag)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == StateExchanging {
		return errors.Wrapf(rerrors.WrongState, "could not add a request while the round is in progress")
	}
	m.queues[dest] = append(m.queues[dest], request{tag: tag, ser: ser})
	m.state = StateAccumulating
	return nil
}

// Clear drops all queued requests
func (m *Manager) Clear() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == StateExchanging {
		return errors.Wrapf(rerrors.WrongState, "could not clear requests while the round is in progress")
	}
	m.queues = make([][]request, len(m.queues))
	m.state = StateIdle
	return nil
}

// Sync executes the queued requests of all sites of the group. It runs the
// local serializers, exchanges the data and runs the deserializers for the
// data received. If any site failed, Sync returns *RoundError with the same
// failures on every site. Other errors mean the exchange itself failed. The
// queue is empty after the call in any case.
func (m *Manager) Sync(ctx context.Context) error {
	m.lock.Lock()
	if m.state == StateExchanging {
		m.lock.Unlock()
		return errors.Wrapf(rerrors.WrongState, "Sync() is already in progress")
	}
	queues := m.queues
	m.queues = make([][]request, len(queues))
	m.state = StateExchanging
	m.lock.Unlock()

	defer func() {
		m.lock.Lock()
		m.state = StateIdle
		m.lock.Unlock()
	}()

	out, localErr := m.serialize(queues)
	in, err := m.ex.AllToAll(ctx, out)
	if err != nil {
		m.logger.Error("Sync(): data exchange failed, err=", err)
		return errors.Wrapf(err, "relocation data exchange failed")
	}

	if localErr == nil {
		localErr = m.deserialize(in)
	}

	return m.exchangeStatus(ctx, localErr)
}

// serialize builds the outgoing buffers. If a serializer fails, every buffer
// is replaced by the abort marker.
func (m *Manager) serialize(queues [][]request) ([][]byte, error) {
	rank := m.ex.Rank()
	out := make([][]byte, len(queues))
	var sent, reqs int
	for dst, q := range queues {
		if cluster.Rank(dst) == rank {
			continue
		}

		enc := codec.NewEncoder()
		enc.WriteByte(statusOk)
		enc.WriteUint(uint64(len(q)))
		for _, r := range q {
			enc.WriteString(r.tag)
		}
		for _, r := range q {
			if err := r.ser(enc); err != nil {
				serr := &serializerError{tag: r.tag, dst: cluster.Rank(dst), err: err}
				m.logger.Error("serialize(): ", serr, ", aborting the round")
				return abortBuffers(len(queues), rank, serr), serr
			}
		}
		enc.Close()
		out[dst] = enc.Bytes()
		sent += enc.Len()
		reqs += len(q)
	}
	if reqs > 0 {
		m.logger.Debug("serialize(): ", reqs, " requests take ", humanize.Bytes(uint64(sent)))
	}
	return out, nil
}

func abortBuffers(n int, rank cluster.Rank, err error) [][]byte {
	enc := codec.NewEncoder()
	enc.WriteByte(statusAborted)
	enc.WriteString(err.Error())
	out := make([][]byte, n)
	for dst := range out {
		if cluster.Rank(dst) != rank {
			out[dst] = enc.Bytes()
		}
	}
	return out
}

// deserialize runs the deserializers for the buffers of all sources in rank
// order. A failure in one buffer does not prevent others from being read.
func (m *Manager) deserialize(in [][]byte) error {
	var res error
	for src, buf := range in {
		if cluster.Rank(src) == m.ex.Rank() {
			continue
		}
		if err := m.deserializeFrom(cluster.Rank(src), buf); err != nil {
			m.logger.Warn("deserialize(): data from site ", src, " failed, err=", err)
			res = multierr.Append(res, err)
		}
	}
	return res
}

// runDeserializer calls d and turns a panic on malformed input into
// ErrEncodingMismatch.
func runDeserializer(d Deserializer, src cluster.Rank, dec *codec.Decoder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(codec.ErrEncodingMismatch, "panic while reading data from site %d: %v", src, r)
		}
	}()
	return d(src, dec)
}

func (m *Manager) deserializeFrom(src cluster.Rank, buf []byte) error {
	dec := codec.NewDecoder(buf)
	status, err := dec.ReadByte()
	if err != nil {
		return errors.Wrapf(err, "no status in the buffer from site %d", src)
	}
	switch status {
	case statusAborted:
		// the sender reports the failure itself
		return nil
	case statusOk:
	default:
		return errors.Wrapf(codec.ErrEncodingMismatch, "unknown buffer status %d from site %d", status, src)
	}

	cnt, err := dec.ReadUint()
	if err != nil {
		return err
	}
	if cnt > uint64(dec.Remaining()) {
		return errors.Wrapf(codec.ErrEncodingMismatch, "site %d sent %d requests in %d bytes", src, cnt, dec.Remaining())
	}
	ds := make([]Deserializer, cnt)
	tags := make([]string, cnt)
	for i := range ds {
		tag, err := dec.ReadString()
		if err != nil {
			return err
		}
		d, ok := m.reg.Get(tag)
		if !ok {
			return errors.Wrapf(codec.ErrEncodingMismatch, "no deserializer for tag %q from site %d", tag, src)
		}
		ds[i] = d
		tags[i] = tag
	}

	for i, d := range ds {
		if err := runDeserializer(d, src, dec); err != nil {
			return errors.Wrapf(err, "deserializer %q for data from site %d failed", tags[i], src)
		}
	}

	if dec.Remaining() != 0 {
		return errors.Wrapf(codec.ErrEncodingMismatch, "%d bytes from site %d are left unread", dec.Remaining(), src)
	}
	return nil
}

// exchangeStatus shares the local outcome with all sites and builds the
// round result from the outcomes of all sites.
func (m *Manager) exchangeStatus(ctx context.Context, localErr error) error {
	enc := codec.NewEncoder()
	enc.WriteByte(kindOf(localErr))
	if localErr != nil {
		enc.WriteString(localErr.Error())
	}

	n := m.ex.Size()
	out := make([][]byte, n)
	for i := range out {
		out[i] = enc.Bytes()
	}
	in, err := m.ex.AllToAll(ctx, out)
	if err != nil {
		m.logger.Error("exchangeStatus(): status exchange failed, err=", err)
		return errors.Wrapf(err, "relocation status exchange failed")
	}

	var fails []SiteError
	for src, buf := range in {
		if cluster.Rank(src) == m.ex.Rank() {
			if localErr != nil {
				fails = append(fails, SiteError{Rank: cluster.Rank(src), Err: localErr})
			}
			continue
		}

		if re := decodeStatus(buf); re != nil {
			fails = append(fails, SiteError{Rank: cluster.Rank(src), Err: re})
		}
	}

	if len(fails) == 0 {
		return nil
	}
	res := &RoundError{Failures: fails}
	m.logger.Warn("Sync(): ", res)
	return res
}

// decodeStatus returns the failure reported by a site, or nil if the site
// succeeded.
func decodeStatus(buf []byte) error {
	dec := codec.NewDecoder(buf)
	kind, err := dec.ReadByte()
	if err != nil {
		return err
	}
	if kind == kindOk {
		return nil
	}
	msg, err := dec.ReadString()
	if err != nil {
		return err
	}
	return &remoteError{kind: kind, msg: msg}
}
