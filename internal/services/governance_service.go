package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/powerchain/backend/internal/identity"
	"github.com/powerchain/backend/internal/models"
	"go.uber.org/zap"
)

const GovernanceLedgerName = "governance_tokens"

// Proposal text limits, in characters.
const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
)

// ProposalExecutor carries out a passed proposal's payload. It runs inside
// the ledger transaction; an error aborts the execution.
type ProposalExecutor interface {
	Execute(ctx context.Context, proposal models.Proposal) error
}

// LoggingExecutor records passed proposals without acting on them.
type LoggingExecutor struct {
	Log *zap.Logger
}

func (e LoggingExecutor) Execute(_ context.Context, p models.Proposal) error {
	if e.Log != nil {
		e.Log.Info("proposal executed",
			zap.Uint64("proposal_id", p.ID), zap.String("target", p.ExecutionTarget),
			zap.Int("payload_bytes", len(p.ExecutionData)))
	}
	return nil
}

type GovernanceConfig struct {
	Admin         string
	InitialSupply int64
	VotingPeriod  time.Duration
	Executor      ProposalExecutor
}

type CreateProposalRequest struct {
	Title           string
	Description     string
	Type            models.ProposalType
	ExecutionTarget string
	ExecutionData   []byte
}

// GovernanceService is token-weighted proposal voting. Vote weight is the
// voter's live token balance at the moment of voting; there is no snapshot.
type GovernanceService struct {
	store    *LedgerStore
	tokens   *TokenLedger
	executor ProposalExecutor
	log      *zap.Logger

	votingPeriod time.Duration
	proposals    map[uint64]*models.Proposal
	order        []uint64
	votes        map[uint64]map[string]models.Vote
	totalVotes   uint64
	executed     int
}

func NewGovernanceService(store *LedgerStore, cfg GovernanceConfig) (*GovernanceService, error) {
	if cfg.VotingPeriod <= 0 {
		return nil, fmt.Errorf("governance: voting period must be positive")
	}
	s := &GovernanceService{
		store:        store,
		tokens:       NewTokenLedger(store, GovernanceLedgerName, cfg.Admin),
		executor:     cfg.Executor,
		log:          store.Logger("governance"),
		votingPeriod: cfg.VotingPeriod,
		proposals:    make(map[uint64]*models.Proposal),
		votes:        make(map[uint64]map[string]models.Vote),
	}
	if s.executor == nil {
		s.executor = LoggingExecutor{Log: s.log}
	}

	if cfg.InitialSupply > 0 {
		tx := store.Begin()
		defer tx.Rollback()
		if err := s.tokens.MintTx(tx, cfg.Admin, cfg.InitialSupply); err != nil {
			return nil, fmt.Errorf("governance: initial supply: %w", err)
		}
		if err := tx.Commit(context.Background()); err != nil {
			return nil, fmt.Errorf("governance: initial supply: %w", err)
		}
	}
	return s, nil
}

func (s *GovernanceService) Tokens() *TokenLedger {
	return s.tokens
}

func (s *GovernanceService) CreateProposal(ctx context.Context, proposer string, req CreateProposalRequest) (uint64, error) {
	title := strings.TrimSpace(req.Title)
	if proposer == "" {
		return 0, fmt.Errorf("create proposal: %w", models.ErrInvalidAddress)
	}
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength ||
		utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		return 0, fmt.Errorf("create proposal: %w: bad title or description", models.ErrInvalidProposal)
	}
	ptype := req.Type
	if ptype == "" {
		ptype = models.ProposalGeneral
	}

	tx := s.store.Begin()
	defer tx.Rollback()

	id := uint64(len(s.order)) + 1
	now := tx.Now()
	p := &models.Proposal{
		ID:              id,
		Proposer:        proposer,
		Title:           title,
		Description:     req.Description,
		Type:            ptype,
		ExecutionTarget: req.ExecutionTarget,
		ExecutionData:   append([]byte(nil), req.ExecutionData...),
		CreatedAt:       now,
		Deadline:        now.Add(s.votingPeriod),
		Outcome:         models.OutcomePending,
	}
	s.addProposalTx(tx, p)

	tx.Emit(models.ProposalCreatedEvent{
		ProposalID:      id,
		Proposer:        proposer,
		Title:           title,
		Description:     p.Description,
		Type:            ptype,
		ExecutionTarget: p.ExecutionTarget,
		ExecutionData:   p.ExecutionData,
		Deadline:        p.Deadline,
		At:              now,
	})
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	s.log.Info("proposal created", zap.Uint64("proposal_id", id), zap.String("proposer", proposer))
	return id, nil
}

// CastVote records voter's single ballot and returns the weight applied.
func (s *GovernanceService) CastVote(ctx context.Context, voter string, proposalID uint64, vote models.VoteType) (int64, error) {
	if vote != models.VoteYes && vote != models.VoteNo {
		return 0, fmt.Errorf("cast vote: %w: unknown vote %q", models.ErrInvalidProposal, vote)
	}

	tx := s.store.Begin()
	defer tx.Rollback()
	now := tx.Now()

	p, ok := s.proposals[proposalID]
	if !ok {
		return 0, fmt.Errorf("cast vote: %w: %d", models.ErrProposalNotFound, proposalID)
	}
	if !now.Before(p.Deadline) {
		return 0, fmt.Errorf("cast vote: %w: %d", models.ErrVotingClosed, proposalID)
	}
	ballots := s.votes[proposalID]
	if _, voted := ballots[voter]; voted {
		return 0, fmt.Errorf("cast vote: %w: %s on %d", models.ErrAlreadyVoted, voter, proposalID)
	}
	weight := s.tokens.balances[voter]
	if weight <= 0 {
		return 0, fmt.Errorf("cast vote: %w", models.ErrNoVotingPower)
	}

	s.recordVoteTx(tx, p, models.Vote{ProposalID: proposalID, Voter: voter, Vote: vote, Weight: weight, CastAt: now})

	tx.Emit(models.VoteCastEvent{
		ProposalID: proposalID,
		Voter:      voter,
		Vote:       vote,
		Weight:     weight,
		YesWeight:  p.YesWeight,
		NoWeight:   p.NoWeight,
		At:         now,
	})
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	s.log.Info("vote cast",
		zap.Uint64("proposal_id", proposalID), zap.String("voter", voter),
		zap.String("vote", string(vote)), zap.Int64("weight", weight))
	return weight, nil
}

// ExecuteProposal runs a passed proposal through the executor once.
func (s *GovernanceService) ExecuteProposal(ctx context.Context, caller string, proposalID uint64) error {
	tx := s.store.Begin()
	defer tx.Rollback()
	now := tx.Now()

	p, ok := s.proposals[proposalID]
	if !ok {
		return fmt.Errorf("execute proposal: %w: %d", models.ErrProposalNotFound, proposalID)
	}
	switch p.OutcomeAt(now) {
	case models.OutcomeExecuted:
		return fmt.Errorf("execute proposal: %w: %d", models.ErrProposalAlreadyExecuted, proposalID)
	case models.OutcomePending:
		return fmt.Errorf("execute proposal: %w: %d", models.ErrVotingOpen, proposalID)
	case models.OutcomeRejected:
		return fmt.Errorf("execute proposal: %w: %d", models.ErrProposalNotPassed, proposalID)
	}

	snapshot := *p
	snapshot.Outcome = models.OutcomePassed
	if err := s.executor.Execute(ctx, snapshot); err != nil {
		return fmt.Errorf("execute proposal: %w", err)
	}

	s.markExecutedTx(tx, p)
	tx.Emit(models.ProposalExecutedEvent{
		ProposalID: proposalID,
		ExecutedBy: caller,
		YesWeight:  p.YesWeight,
		NoWeight:   p.NoWeight,
		At:         now,
	})
	return tx.Commit(ctx)
}

// GetProposal returns the proposal with its outcome evaluated now.
func (s *GovernanceService) GetProposal(proposalID uint64) (models.Proposal, error) {
	var (
		p     models.Proposal
		found bool
	)
	s.store.View(func(now time.Time) {
		if stored, ok := s.proposals[proposalID]; ok {
			p, found = *stored, true
			p.ExecutionData = append([]byte(nil), stored.ExecutionData...)
			p.Outcome = stored.OutcomeAt(now)
		}
	})
	if !found {
		return models.Proposal{}, fmt.Errorf("%w: %d", models.ErrProposalNotFound, proposalID)
	}
	return p, nil
}

// GetVote returns voter's ballot on proposalID, if any.
func (s *GovernanceService) GetVote(proposalID uint64, voter string) (models.Vote, bool) {
	var (
		v  models.Vote
		ok bool
	)
	s.store.View(func(time.Time) { v, ok = s.votes[proposalID][voter] })
	return v, ok
}

func (s *GovernanceService) GetVotingStats() models.VotingStats {
	var stats models.VotingStats
	s.store.View(func(now time.Time) {
		stats.TotalProposals = len(s.order)
		stats.TotalVotes = s.totalVotes
		stats.ExecutedProposals = s.executed
		for _, id := range s.order {
			if s.proposals[id].OutcomeAt(now) == models.OutcomePending {
				stats.ActiveProposals++
			}
		}
	})
	return stats
}

func (s *GovernanceService) GetVotingPower(account string) int64 {
	return s.tokens.BalanceOf(account)
}

func (s *GovernanceService) TransferTokens(ctx context.Context, from, to string, amount int64) error {
	return s.tokens.Transfer(ctx, from, to, amount)
}

// IssueTokens mints governance tokens; only registered issuers may call it.
func (s *GovernanceService) IssueTokens(ctx context.Context, caller, to string, amount int64) error {
	tx := s.store.Begin()
	defer tx.Rollback()

	if !s.tokens.isIssuerTx(caller) {
		return fmt.Errorf("issue governance tokens: %w", models.ErrUnauthorized)
	}
	if err := s.tokens.MintTx(tx, to, amount); err != nil {
		return fmt.Errorf("issue governance tokens: %w", err)
	}
	tx.Emit(models.TransferEvent{Ledger: GovernanceLedgerName, From: identity.ZeroAddress, To: to, Amount: amount, At: tx.Now()})
	return tx.Commit(ctx)
}

func (s *GovernanceService) AddIssuer(ctx context.Context, caller, issuer string) error {
	return s.tokens.AddIssuer(ctx, caller, issuer)
}

func (s *GovernanceService) RemoveIssuer(ctx context.Context, caller, issuer string) error {
	return s.tokens.RemoveIssuer(ctx, caller, issuer)
}

func (s *GovernanceService) addProposalTx(tx *LedgerTx, p *models.Proposal) {
	s.proposals[p.ID] = p
	s.order = append(s.order, p.ID)
	s.votes[p.ID] = make(map[string]models.Vote)
	tx.OnRollback(func() {
		delete(s.proposals, p.ID)
		delete(s.votes, p.ID)
		s.order = s.order[:p.ID-1]
	})
}

func (s *GovernanceService) recordVoteTx(tx *LedgerTx, p *models.Proposal, v models.Vote) {
	ballots := s.votes[p.ID]
	yes, no, count := p.YesWeight, p.NoWeight, p.VoteCount
	if v.Vote == models.VoteYes {
		p.YesWeight += v.Weight
	} else {
		p.NoWeight += v.Weight
	}
	p.VoteCount++
	ballots[v.Voter] = v
	s.totalVotes++
	tx.OnRollback(func() {
		p.YesWeight, p.NoWeight, p.VoteCount = yes, no, count
		delete(ballots, v.Voter)
		s.totalVotes--
	})
}

func (s *GovernanceService) markExecutedTx(tx *LedgerTx, p *models.Proposal) {
	p.Executed = true
	p.Outcome = models.OutcomeExecuted
	s.executed++
	tx.OnRollback(func() {
		p.Executed = false
		p.Outcome = models.OutcomePending
		s.executed--
	})
}

// ReplayTx reapplies a journaled governance event. The executor is not
// called again for executed proposals.
func (s *GovernanceService) ReplayTx(tx *LedgerTx, ev models.Event) (bool, error) {
	if ok, err := s.tokens.ReplayTx(tx, ev); ok || err != nil {
		return ok, err
	}
	switch e := ev.(type) {
	case models.ProposalCreatedEvent:
		if want := uint64(len(s.order)) + 1; e.ProposalID != want {
			return true, fmt.Errorf("proposal %d replayed out of order, expected %d", e.ProposalID, want)
		}
		s.addProposalTx(tx, &models.Proposal{
			ID:              e.ProposalID,
			Proposer:        e.Proposer,
			Title:           e.Title,
			Description:     e.Description,
			Type:            e.Type,
			ExecutionTarget: e.ExecutionTarget,
			ExecutionData:   e.ExecutionData,
			CreatedAt:       e.At,
			Deadline:        e.Deadline,
			Outcome:         models.OutcomePending,
		})
		return true, nil
	case models.VoteCastEvent:
		p, ok := s.proposals[e.ProposalID]
		if !ok {
			return true, fmt.Errorf("vote on %d: %w", e.ProposalID, models.ErrProposalNotFound)
		}
		if _, voted := s.votes[e.ProposalID][e.Voter]; voted {
			return true, fmt.Errorf("vote on %d: %w: %s", e.ProposalID, models.ErrAlreadyVoted, e.Voter)
		}
		if power := s.tokens.balances[e.Voter]; power != e.Weight {
			return true, fmt.Errorf("vote on %d: %s has %d tokens after replay, journaled weight %d", e.ProposalID, e.Voter, power, e.Weight)
		}
		s.recordVoteTx(tx, p, models.Vote{ProposalID: e.ProposalID, Voter: e.Voter, Vote: e.Vote, Weight: e.Weight, CastAt: e.At})
		return true, nil
	case models.ProposalExecutedEvent:
		p, ok := s.proposals[e.ProposalID]
		if !ok {
			return true, fmt.Errorf("execution of %d: %w", e.ProposalID, models.ErrProposalNotFound)
		}
		if p.Executed {
			return true, fmt.Errorf("execution of %d: %w", e.ProposalID, models.ErrProposalAlreadyExecuted)
		}
		s.markExecutedTx(tx, p)
		return true, nil
	}
	return false, nil
}
