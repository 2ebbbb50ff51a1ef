package core

// network.go – the libp2p overlay. A gossipsub bus over the module topics
// plus mDNS local discovery; discovered non-loopback peers are kept in a
// last-seen table. One cooperative driver loop owns all network I/O: it
// drains the outbound channel into pubsub and feeds inbound messages to the
// dispatcher.

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/sirupsen/logrus"
)

// NodeID identifies a peer on the overlay.
type NodeID string

// PeerInfo is one row of the discovery table.
type PeerInfo struct {
	ID       NodeID
	Addr     ma.Multiaddr
	LastSeen int64 // microseconds since the Unix epoch
}

// P2PConfig carries the overlay's listen and discovery settings.
type P2PConfig struct {
	P2PPort      uint16
	DiscoveryTag string
}

// P2PNode is the overlay endpoint.
type P2PNode struct {
	host   host.Host
	pubsub *pubsub.PubSub

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	peerLock sync.RWMutex
	peers    map[NodeID]*PeerInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// NewP2PNode boots a libp2p host from the node's signing key, attaches
// gossipsub and registers mDNS discovery under the configured tag.
func NewP2PNode(cfg P2PConfig, kp ed25519.PrivateKey) (*P2PNode, error) {
	ctx, cancel := context.WithCancel(context.Background())

	identity, err := Libp2pIdentity(kp)
	if err != nil {
		cancel()
		return nil, err
	}
	h, err := libp2p.New(
		libp2p.Identity(identity),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.P2PPort)),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	n := &P2PNode{
		host:   h,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
		peers:  make(map[NodeID]*PeerInfo),
		ctx:    ctx,
		cancel: cancel,
	}

	tag := cfg.DiscoveryTag
	if tag == "" {
		tag = "aurachain"
	}
	svc := mdns.NewMdnsService(h, tag, n)
	if err := svc.Start(); err != nil {
		logrus.Warnf("mDNS discovery failed to start: %v", err)
	}

	logrus.Infof("p2p host up, peer id %s", h.ID())
	return n, nil
}

// Ensure P2PNode implements mdns.Notifee.
var _ mdns.Notifee = (*P2PNode)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer.
// Self-connections and loopback-only peers are ignored; known peers just get
// their last-seen refreshed.
func (n *P2PNode) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	var addr ma.Multiaddr
	for _, a := range info.Addrs {
		if manet.IsIPLoopback(a) {
			continue
		}
		addr = a
		break
	}
	if addr == nil {
		return
	}

	id := NodeID(info.ID.String())
	now := time.Now().UnixMicro()

	n.peerLock.Lock()
	if known, exists := n.peers[id]; exists {
		known.LastSeen = now
		n.peerLock.Unlock()
		return
	}
	n.peers[id] = &PeerInfo{ID: id, Addr: addr, LastSeen: now}
	n.peerLock.Unlock()

	if err := n.host.Connect(n.ctx, info); err != nil {
		logrus.Warnf("failed to connect to discovered peer %s: %v", info.ID, err)
		return
	}
	logrus.Infof("connected to peer %s via mDNS", info.ID)
}

func (n *P2PNode) joinTopic(topic string) (*pubsub.Topic, error) {
	n.topicLock.Lock()
	defer n.topicLock.Unlock()
	if t, ok := n.topics[topic]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", topic, err)
	}
	n.topics[topic] = t
	return t, nil
}

// Broadcast publishes data on a topic.
func (n *P2PNode) Broadcast(topic string, data []byte) error {
	t, err := n.joinTopic(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(n.ctx, data); err != nil {
		return fmt.Errorf("publish topic %s: %w", topic, err)
	}
	return nil
}

// Start wires the overlay to the dispatcher: one goroutine per module topic
// feeding inbound traffic in, and the driver loop draining outbound. Start
// returns after spawning the loops; they end when out closes or the node
// shuts down.
func (n *P2PNode) Start(disp *MessageDispatcher, out <-chan OutboundMessage) error {
	for _, topic := range []string{TopicNode, TopicConsensus} {
		t, err := n.joinTopic(topic)
		if err != nil {
			return err
		}
		sub, err := t.Subscribe()
		if err != nil {
			return fmt.Errorf("subscribe topic %s: %w", topic, err)
		}
		go n.listenLoop(topic, sub, disp)
	}
	go n.driveOutbound(out)
	return nil
}

func (n *P2PNode) listenLoop(topic string, sub *pubsub.Subscription, disp *MessageDispatcher) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			logrus.Infof("subscription on %s closed: %v", topic, err)
			return
		}
		if msg.GetFrom() == n.host.ID() {
			continue
		}
		n.touchPeer(NodeID(msg.GetFrom().String()))
		disp.Dispatch(topic, msg.Data)
	}
}

func (n *P2PNode) touchPeer(id NodeID) {
	n.peerLock.Lock()
	if known, exists := n.peers[id]; exists {
		known.LastSeen = time.Now().UnixMicro()
	}
	n.peerLock.Unlock()
}

func (n *P2PNode) driveOutbound(out <-chan OutboundMessage) {
	for {
		select {
		case <-n.ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				logrus.Info("outbound channel closed, p2p driver stopping")
				return
			}
			if err := n.Broadcast(msg.Topic, msg.Data); err != nil {
				logrus.Warnf("broadcast on %s failed: %v", msg.Topic, err)
			}
		}
	}
}

// Peers returns a copy of the discovery table.
func (n *P2PNode) Peers() []*PeerInfo {
	n.peerLock.RLock()
	defer n.peerLock.RUnlock()
	list := make([]*PeerInfo, 0, len(n.peers))
	for _, p := range n.peers {
		copied := *p
		list = append(list, &copied)
	}
	return list
}

// HostID returns the overlay identity.
func (n *P2PNode) HostID() NodeID {
	return NodeID(n.host.ID().String())
}

// Close tears down the overlay.
func (n *P2PNode) Close() error {
	n.cancel()
	return n.host.Close()
}
