package node

import (
	"context"
	"fmt"
	"time"

	hg "github.com/mosaicnetworks/chorus/src/hashgraph"
	"github.com/mosaicnetworks/chorus/src/net"
	"github.com/sirupsen/logrus"
)

// requestSync pulls from target. With known set, the response carries the
// Events we lack; with wanted set, it carries those specific Events.
func (n *Node) requestSync(ctx context.Context, target string, known map[uint32]int, wanted []string) (net.SyncResponse, error) {
	args := net.SyncRequest{
		FromID:    n.validator.ID(),
		Known:     known,
		Wanted:    wanted,
		SyncLimit: n.conf.SyncLimit,
	}

	return n.requestSyncWithRetry(ctx, target, args)
}

func (n *Node) requestEagerSync(target string, events []hg.WireEvent) (net.EagerSyncResponse, error) {
	args := net.EagerSyncRequest{
		FromID: n.validator.ID(),
		Events: events,
	}

	var out net.EagerSyncResponse

	err := n.trans.EagerSync(target, &args, &out)

	return out, err
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	case *net.EagerSyncRequest:
		n.processEagerSyncRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

// processSyncRequest answers a pull. Wanted hashes take precedence; otherwise
// a nil Known map gets every Event in topological order, and a non-nil one
// gets the diff. The response is truncated to the smaller of the two sync
// limits. Only the read lock is held.
func (n *Node) processSyncRequest(rpc net.RPC, cmd *net.SyncRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"known":   cmd.Known,
		"wanted":  len(cmd.Wanted),
	}).Debug("process SyncRequest")

	limit := n.conf.SyncLimit
	if cmd.SyncLimit > 0 && (limit <= 0 || cmd.SyncLimit < limit) {
		limit = cmd.SyncLimit
	}

	resp := &net.SyncResponse{
		FromID: n.validator.ID(),
	}

	var respErr error

	start := time.Now()

	n.coreLock.RLock()
	var events []*hg.Event
	var err error
	switch {
	case len(cmd.Wanted) > 0:
		events = n.core.EventsByHash(cmd.Wanted)
	case cmd.Known == nil:
		events, err = n.core.AllEvents(limit)
	default:
		events, err = n.core.EventDiff(cmd.Known)
	}
	if err == nil {
		if limit > 0 && len(events) > limit {
			events = events[:limit]
		}
		resp.Events = n.core.ToWire(events)
	}
	resp.Head = n.core.Head
	resp.Known = n.core.KnownEvents()
	n.coreLock.RUnlock()

	elapsed := time.Since(start)
	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("Diff()")

	if err != nil {
		n.logger.WithField("error", err).Error("Calculating Diff")
		respErr = err
	}

	n.logger.WithFields(logrus.Fields{
		"events":  len(resp.Events),
		"known":   resp.Known,
		"rpc_err": respErr,
	}).Debug("Responding to SyncRequest")

	rpc.Respond(resp, respErr)
}

// processEagerSyncRequest inserts pushed Events. Signatures are checked before
// the writer lock is taken.
func (n *Node) processEagerSyncRequest(rpc net.RPC, cmd *net.EagerSyncRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"events":  len(cmd.Events),
	}).Debug("EagerSyncRequest")

	_, err := n.sync(cmd.FromID, cmd.Events)

	resp := &net.EagerSyncResponse{
		FromID:  n.validator.ID(),
		Success: err == nil,
	}

	rpc.Respond(resp, nil)
}
