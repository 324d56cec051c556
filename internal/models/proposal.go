package models

import (
	"fmt"
	"strings"
	"time"
)

type ProposalType string

const (
	ProposalGeneral      ProposalType = "general"
	ProposalPricing      ProposalType = "pricing"
	ProposalCarbonPolicy ProposalType = "carbon_policy"
	ProposalTreasury     ProposalType = "treasury"
	ProposalUpgrade      ProposalType = "upgrade"
)

func ParseProposalType(s string) (ProposalType, error) {
	t := ProposalType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return ProposalGeneral, nil
	case ProposalGeneral, ProposalPricing, ProposalCarbonPolicy, ProposalTreasury, ProposalUpgrade:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown proposal type %q", ErrInvalidProposal, s)
}

type ProposalOutcome string

const (
	OutcomePending  ProposalOutcome = "pending"
	OutcomePassed   ProposalOutcome = "passed"
	OutcomeRejected ProposalOutcome = "rejected"
	OutcomeExecuted ProposalOutcome = "executed"
)

type VoteType string

const (
	VoteYes VoteType = "yes"
	VoteNo  VoteType = "no"
)

func ParseVoteType(s string) (VoteType, error) {
	v := VoteType(strings.ToLower(strings.TrimSpace(s)))
	if v != VoteYes && v != VoteNo {
		return "", fmt.Errorf("%w: unknown vote %q", ErrInvalidProposal, s)
	}
	return v, nil
}

type Proposal struct {
	ID              uint64          `json:"id"`
	Proposer        string          `json:"proposer"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Type            ProposalType    `json:"type"`
	ExecutionTarget string          `json:"execution_target,omitempty"`
	ExecutionData   []byte          `json:"execution_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Deadline        time.Time       `json:"deadline"`
	YesWeight       int64           `json:"yes_weight"`
	NoWeight        int64           `json:"no_weight"`
	VoteCount       int             `json:"vote_count"`
	Executed        bool            `json:"executed"`
	Outcome         ProposalOutcome `json:"outcome"`
}

// OutcomeAt derives the outcome as seen at now. Ties reject.
func (p *Proposal) OutcomeAt(now time.Time) ProposalOutcome {
	switch {
	case p.Executed:
		return OutcomeExecuted
	case now.Before(p.Deadline):
		return OutcomePending
	case p.YesWeight > p.NoWeight:
		return OutcomePassed
	default:
		return OutcomeRejected
	}
}

// Vote is the single recorded ballot of one voter on one proposal.
type Vote struct {
	ProposalID uint64    `json:"proposal_id"`
	Voter      string    `json:"voter"`
	Vote       VoteType  `json:"vote"`
	Weight     int64     `json:"weight"`
	CastAt     time.Time `json:"cast_at"`
}

type VotingStats struct {
	TotalProposals    int    `json:"total_proposals"`
	TotalVotes        uint64 `json:"total_votes"`
	ActiveProposals   int    `json:"active_proposals"`
	ExecutedProposals int    `json:"executed_proposals"`
}
