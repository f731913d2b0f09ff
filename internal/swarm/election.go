package swarm

import (
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/protocol"
)

// electLocked runs leader selection over the admitted members and returns
// whether the leader changed. The rule is deterministic: the member with the
// highest compute score wins, ties broken by the lexicographically smallest
// node id. Callers hold c.mu.
func (c *Coordinator) electLocked(reason string) bool {
	winner := c.selectLeaderLocked()
	if winner == c.leaderID {
		return false
	}

	c.leaderID = winner
	c.term++
	c.lastLeaderDuty = c.now()

	if winner == "" {
		c.log.WithField("term", c.term).Info("swarm has no electable leader")
		return true
	}

	c.log.WithFields(logrus.Fields{
		"leader": winner,
		"term":   c.term,
		"reason": reason,
	}).Info("leader elected")

	c.broadcastLocked(protocol.MustMessage(protocol.MessageTypeLeaderElection, c.swarmID, protocol.LeaderElection{
		LeaderID: winner,
		Term:     c.term,
		Reason:   reason,
	}))
	if c.events != nil {
		c.events.LeaderElected(winner, c.term)
	}
	return true
}

func (c *Coordinator) selectLeaderLocked() string {
	var (
		winner string
		best   float64
	)
	for id, m := range c.members {
		info := m.Info()
		switch {
		case winner == "",
			info.ComputeUnits > best,
			info.ComputeUnits == best && id < winner:
			winner = id
			best = info.ComputeUnits
		}
	}
	return winner
}

// handleElectionVote records a member's vote. Selection is deterministic on
// the shared membership view, so a disagreeing vote means the voter holds a
// stale view; it is logged and the authoritative result rebroadcast to the
// voter.
func (c *Coordinator) handleElectionVote(m *Member, msg *protocol.Message) {
	vote, err := protocol.DecodePayload[protocol.ElectionVote](msg)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, err.Error())
		return
	}

	c.mu.RLock()
	leaderID, term := c.leaderID, c.term
	c.mu.RUnlock()

	if vote.Term == term && vote.CandidateID == leaderID {
		return
	}

	c.log.WithFields(logrus.Fields{
		"voter":     m.NodeID(),
		"candidate": vote.CandidateID,
		"term":      vote.Term,
	}).Debug("stale election vote")
	m.enqueue(protocol.MustMessage(protocol.MessageTypeLeaderElection, c.swarmID, protocol.LeaderElection{
		LeaderID: leaderID,
		Term:     term,
		Reason:   "vote reconciliation",
	}))
}
