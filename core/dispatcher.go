package core

// dispatcher.go – inbound demux and outbound fan-in. Inbound overlay traffic
// is routed by module topic into two typed channels: decoded node messages
// for the node processor and raw consensus bytes for the engine's receiver.
// Outbound traffic funnels through one buffered channel drained by the P2P
// driver. Closing a channel ends the loop that owns it.

import (
	"github.com/sirupsen/logrus"
)

const dispatchBuffer = 1024

// OutboundMessage is a payload queued for publication on a module topic.
type OutboundMessage struct {
	Topic string
	Data  []byte
}

// MessageDispatcher owns the typed inbound channels.
type MessageDispatcher struct {
	NodeMsgCh      chan *NodeMessage
	ConsensusMsgCh chan []byte
}

func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{
		NodeMsgCh:      make(chan *NodeMessage, dispatchBuffer),
		ConsensusMsgCh: make(chan []byte, dispatchBuffer),
	}
}

// Dispatch decodes an inbound payload by module topic and routes it. Full
// channels drop the message: the sender does not retry, the next round
// regossips.
func (d *MessageDispatcher) Dispatch(topic string, data []byte) {
	switch topic {
	case TopicNode:
		var msg NodeMessage
		if err := Deserialize(data, &msg); err != nil {
			logrus.Warnf("malformed node message dropped: %v", err)
			return
		}
		select {
		case d.NodeMsgCh <- &msg:
		default:
			logrus.Warn("node message channel full, message dropped")
		}
	case TopicConsensus:
		select {
		case d.ConsensusMsgCh <- data:
		default:
			logrus.Warn("consensus message channel full, message dropped")
		}
	default:
		logrus.Debugf("message on unknown topic %q dropped", topic)
	}
}

// Close ends both receiver loops.
func (d *MessageDispatcher) Close() {
	close(d.NodeMsgCh)
	close(d.ConsensusMsgCh)
}

// MessageSender serializes typed messages into the outbound channel. Sends
// never block; a full channel drops the message and logs, the caller moves
// on.
type MessageSender struct {
	out chan<- OutboundMessage
}

func NewMessageSender(out chan<- OutboundMessage) *MessageSender {
	return &MessageSender{out: out}
}

func (ms *MessageSender) publish(topic string, v interface{}) {
	data, err := Serialize(v)
	if err != nil {
		logrus.Errorf("outbound message on %s could not be encoded: %v", topic, err)
		return
	}
	select {
	case ms.out <- OutboundMessage{Topic: topic, Data: data}:
	default:
		logrus.Warnf("outbound channel full, message on %s dropped", topic)
	}
}

// SendTransaction gossips a signed transaction on the node topic.
func (ms *MessageSender) SendTransaction(txn *SignedTransaction) {
	ms.publish(TopicNode, &NodeMessage{SignedTransaction: txn})
}

// SendBlock gossips a signed block on the node topic.
func (ms *MessageSender) SendBlock(block *SignedBlock) {
	ms.publish(TopicNode, &NodeMessage{SignedBlock: block})
}

// SendAuthorBlock publishes a proposal on the consensus topic.
func (ms *MessageSender) SendAuthorBlock(ab *AuthorBlock) {
	ms.publish(TopicConsensus, &ConsensusMessage{AuthorBlock: ab})
}

// SendBlockAcceptance publishes an attestation on the consensus topic.
func (ms *MessageSender) SendBlockAcceptance(ba *BlockAcceptance) {
	ms.publish(TopicConsensus, &ConsensusMessage{BlockAcceptance: ba})
}

// SendRoundOwner publishes the leader beacon on the consensus topic.
func (ms *MessageSender) SendRoundOwner(ro *RoundOwner) {
	ms.publish(TopicConsensus, &ConsensusMessage{RoundOwner: ro})
}

// NodeMsgProcessor drains the node channel: inbound transactions go into the
// pool, inbound blocks are consumed by consensus through its own proposal
// path and only logged here.
type NodeMsgProcessor struct {
	pool *TransactionPool
}

func NewNodeMsgProcessor(pool *TransactionPool) *NodeMsgProcessor {
	return &NodeMsgProcessor{pool: pool}
}

// Start blocks draining ch until it closes.
func (np *NodeMsgProcessor) Start(ch <-chan *NodeMessage) {
	for msg := range ch {
		switch {
		case msg.SignedTransaction != nil:
			txn := msg.SignedTransaction
			key, err := txn.OrderKey()
			if err != nil {
				logrus.Warnf("gossiped transaction dropped: %v", err)
				continue
			}
			np.pool.Insert(key, txn)
			logrus.Debugf("gossiped transaction %s added to pool", txn.Hash())
		case msg.SignedBlock != nil:
			logrus.Debugf("gossiped block %d received", msg.SignedBlock.Block.ID)
		default:
			logrus.Warn("empty node message received")
		}
	}
	logrus.Info("node message channel closed")
}
