package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/polydawn/capsule/api/def"
)

/*
	Elector picks the cluster leader by smallest id among the Active node
	set, but only ever among the set raft's own committed log has agreed
	is a member -- production needs a quorum protocol underneath a bare
	smallest-id race, not instead of one. Elector drives a raft.Node for
	real: it ticks it, consumes Ready(), persists entries to the node's
	MemoryStorage, applies committed ConfChange entries to the agreed
	set, and forwards outbound Messages to peers over a MessageSender
	(fabric.Transport satisfies this by shape); Leader() then resolves
	that agreed set down to one leader deterministically, with no second
	election protocol layered on top.
*/

// MessageSender is how an Elector gets a raft message to another node;
// fabric.Transport.StepPeer matches this shape without either package
// importing the other.
type MessageSender interface {
	StepPeer(peerAddr string, msg raftpb.Message)
}

type Elector struct {
	selfID string

	raftNode raft.Node
	storage  *raft.MemoryStorage
	sender   MessageSender

	mu     sync.RWMutex
	agreed map[string]bool   // node ids raft's committed log currently lists as members
	nodeOf map[uint64]string // raft numeric id -> cluster node id
	addrOf map[string]string // cluster node id -> fabric address, for routing outbound messages

	log  log15.Logger
	stop chan struct{}
}

// NewElector starts a raft node for selfID. peerAddrs maps every other
// cluster node's id to the fabric address Elector should deliver raft
// messages to; an empty map starts a single-node (self-only) raft group,
// the steady state for a freshly bootstrapped cluster's first node.
// sender carries outbound messages to peers; pass a *fabric.Transport in
// production.
func NewElector(selfID string, peerAddrs map[string]string, sender MessageSender) *Elector {
	storage := raft.NewMemoryStorage()
	cfg := &raft.Config{
		ID:              hashID(selfID),
		ElectionTick:    10,
		HeartbeatTick:   1,
		Storage:         storage,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
	}

	nodeOf := map[uint64]string{hashID(selfID): selfID}
	addrOf := make(map[string]string, len(peerAddrs))
	agreed := map[string]bool{selfID: true}
	peers := []raft.Peer{{ID: cfg.ID, Context: []byte(selfID)}}
	for id, addr := range peerAddrs {
		rid := hashID(id)
		nodeOf[rid] = id
		addrOf[id] = addr
		agreed[id] = true
		peers = append(peers, raft.Peer{ID: rid, Context: []byte(id)})
	}

	node := raft.StartNode(cfg, peers)

	e := &Elector{
		selfID:   selfID,
		raftNode: node,
		storage:  storage,
		sender:   sender,
		agreed:   agreed,
		nodeOf:   nodeOf,
		addrOf:   addrOf,
		log:      log15.New("module", "cluster.election"),
		stop:     make(chan struct{}),
	}
	go e.run()
	return e
}

// hashID turns a node id string into the uint64 raft wants; collisions
// within a single cluster's membership are astronomically unlikely at
// any realistic cluster size and raft treats a collision as two peers
// sharing an identity, which would be caught immediately by conflicting
// proposals.
func hashID(id string) uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return h
}

// run is the raft.Node driver loop every consumer of this library must
// provide: tick it on a timer, push whatever the last Ready() produced
// through storage/transport/apply, then Advance() to let the node hand
// over the next one.
func (e *Elector) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			e.raftNode.Stop()
			return
		case <-ticker.C:
			e.raftNode.Tick()
		case rd := <-e.raftNode.Ready():
			e.handleReady(rd)
		}
	}
}

func (e *Elector) handleReady(rd raft.Ready) {
	if !raft.IsEmptyHardState(rd.HardState) {
		if err := e.storage.SetHardState(rd.HardState); err != nil {
			e.log.Error("persist hard state failed", "err", err)
		}
	}
	if len(rd.Entries) > 0 {
		if err := e.storage.Append(rd.Entries); err != nil {
			e.log.Error("persist entries failed", "err", err)
		}
	}
	for _, msg := range rd.Messages {
		e.route(msg)
	}
	for _, entry := range rd.CommittedEntries {
		e.apply(entry)
	}
	e.raftNode.Advance()
}

func (e *Elector) route(msg raftpb.Message) {
	if e.sender == nil {
		return
	}
	e.mu.RLock()
	nodeID, ok := e.nodeOf[msg.To]
	var addr string
	if ok {
		addr, ok = e.addrOf[nodeID]
	}
	e.mu.RUnlock()
	if !ok || nodeID == e.selfID {
		return
	}
	e.sender.StepPeer(addr, msg)
}

func (e *Elector) apply(entry raftpb.Entry) {
	if entry.Type != raftpb.EntryConfChange {
		return
	}
	var cc raftpb.ConfChange
	if err := cc.Unmarshal(entry.Data); err != nil {
		e.log.Error("unmarshal conf change failed", "err", err)
		return
	}
	e.raftNode.ApplyConfChange(cc)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch cc.Type {
	case raftpb.ConfChangeAddNode, raftpb.ConfChangeAddLearnerNode:
		if len(cc.Context) == 0 {
			return
		}
		id := string(cc.Context)
		e.nodeOf[cc.NodeID] = id
		e.agreed[id] = true
	case raftpb.ConfChangeRemoveNode:
		if id, ok := e.nodeOf[cc.NodeID]; ok {
			delete(e.agreed, id)
			delete(e.nodeOf, cc.NodeID)
			delete(e.addrOf, id)
		}
	}
}

// ProposeJoin proposes nodeID (reachable at addr) be added to the
// cluster's agreed membership. The join only takes effect in agreed
// once the proposal commits through raft's log and handleReady applies
// it -- not when this call returns.
func (e *Elector) ProposeJoin(ctx context.Context, nodeID, addr string) error {
	e.mu.Lock()
	e.addrOf[nodeID] = addr
	e.mu.Unlock()
	cc := raftpb.ConfChange{Type: raftpb.ConfChangeAddNode, NodeID: hashID(nodeID), Context: []byte(nodeID)}
	return e.raftNode.ProposeConfChange(ctx, cc)
}

// ProposeRemove proposes nodeID be removed from the cluster's agreed
// membership, the same commit-then-apply path ProposeJoin takes.
func (e *Elector) ProposeRemove(ctx context.Context, nodeID string) error {
	cc := raftpb.ConfChange{Type: raftpb.ConfChangeRemoveNode, NodeID: hashID(nodeID)}
	return e.raftNode.ProposeConfChange(ctx, cc)
}

// Leader returns the smallest id among the nodes both raft-agreed-member
// and currently Active in Membership's view -- the intersection is what
// keeps a partitioned-off node (still locally "Active" in its own stale
// membership table) from electing itself leader against quorum.
func Leader(e *Elector, active []def.Node) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	best := ""
	for _, n := range active {
		if !e.agreed[n.ID] {
			continue
		}
		if best == "" || n.ID < best {
			best = n.ID
		}
	}
	return best, best != ""
}

func (e *Elector) IsLeader(selfID string, active []def.Node) bool {
	leader, ok := Leader(e, active)
	return ok && leader == selfID
}

// Step feeds a raft message received over the fabric transport into the
// underlying node; it satisfies fabric.RaftStepHandler.
func (e *Elector) Step(ctx context.Context, msg raftpb.Message) error {
	return e.raftNode.Step(ctx, msg)
}

func (e *Elector) Stop() { close(e.stop) }
