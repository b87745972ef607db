package service_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/registry/service"
)

// ── In-memory agent store ──────────────────────────────────────────────────

type stubAgentStore struct {
	mu   sync.RWMutex
	rows map[string]*model.Agent
}

func newStubAgentStore(agents ...*model.Agent) *stubAgentStore {
	s := &stubAgentStore{rows: make(map[string]*model.Agent)}
	for _, a := range agents {
		cp := *a
		s.rows[a.ID] = &cp
	}
	return s
}

func (s *stubAgentStore) Upsert(_ context.Context, agent *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[agent.ID]; ok {
		// The real upsert never touches status columns.
		agent.Status = existing.Status
		agent.QuarantineReason = existing.QuarantineReason
		agent.QuarantineAt = existing.QuarantineAt
	}
	cp := *agent
	s.rows[agent.ID] = &cp
	return nil
}

func (s *stubAgentStore) Get(_ context.Context, id string) (*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *stubAgentStore) ListAll(_ context.Context) ([]*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Agent, 0, len(s.rows))
	for _, agent := range s.rows {
		cp := *agent
		out = append(out, &cp)
	}
	return out, nil
}

func (s *stubAgentStore) SetStatus(_ context.Context, id string, status model.AgentStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	agent.Status = status
	if status == model.AgentStatusActive {
		agent.QuarantineReason = nil
		agent.QuarantineAt = nil
		return nil
	}
	now := time.Now().UTC()
	agent.QuarantineReason = &reason
	agent.QuarantineAt = &now
	return nil
}

// ── In-memory caller store ─────────────────────────────────────────────────

type stubCallerStore struct {
	mu   sync.RWMutex
	rows map[string]*model.Caller
}

func newStubCallerStore(callers ...*model.Caller) *stubCallerStore {
	s := &stubCallerStore{rows: make(map[string]*model.Caller)}
	for _, c := range callers {
		cp := *c
		s.rows[c.CallerID] = &cp
	}
	return s
}

func (s *stubCallerStore) Upsert(_ context.Context, caller *model.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *caller
	s.rows[caller.CallerID] = &cp
	return nil
}

func (s *stubCallerStore) Get(_ context.Context, callerID string) (*model.Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caller, ok := s.rows[callerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *caller
	return &cp, nil
}

func (s *stubCallerStore) HasClientIDConflict(_ context.Context, callerType model.CallerType, clientID, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.rows {
		if c.Type == callerType && strings.HasPrefix(c.Identifier, clientID+"|") && c.Identifier != identifier {
			return true, nil
		}
	}
	return false, nil
}

// ── In-memory feedback store ───────────────────────────────────────────────

type stubFeedbackStore struct {
	mu   sync.RWMutex
	rows []*model.Feedback
}

func newStubFeedbackStore() *stubFeedbackStore { return &stubFeedbackStore{} }

// seed appends a row without going through Insert's timestamping.
func (s *stubFeedbackStore) seed(fb model.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, &fb)
}

func (s *stubFeedbackStore) Insert(_ context.Context, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb.ID = int64(len(s.rows) + 1)
	fb.CreatedAt = time.Now().UTC()
	cp := *fb
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *stubFeedbackStore) CountByConsumerSince(_ context.Context, consumerID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fb := range s.rows {
		if fb.ConsumerID == consumerID && fb.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *stubFeedbackStore) CountPairSince(_ context.Context, agentID, consumerID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fb := range s.rows {
		if fb.AgentID == agentID && fb.ConsumerID == consumerID && fb.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *stubFeedbackStore) CountPair(_ context.Context, agentID, consumerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fb := range s.rows {
		if fb.AgentID == agentID && fb.ConsumerID == consumerID {
			n++
		}
	}
	return n, nil
}

func (s *stubFeedbackStore) CountForAgent(_ context.Context, agentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fb := range s.rows {
		if fb.AgentID == agentID {
			n++
		}
	}
	return n, nil
}

func (s *stubFeedbackStore) CountExtremeForAgent(_ context.Context, agentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fb := range s.rows {
		if fb.AgentID == agentID && (fb.Rating == 0 || fb.Rating == 1) {
			n++
		}
	}
	return n, nil
}

func (s *stubFeedbackStore) CountByAgents(_ context.Context, agentIDs []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	counts := make(map[string]int64)
	for _, fb := range s.rows {
		if want[fb.AgentID] {
			counts[fb.AgentID]++
		}
	}
	return counts, nil
}

// ── In-memory fraud-detection log ──────────────────────────────────────────

type stubFraudStore struct {
	mu   sync.RWMutex
	rows []*model.FraudDetection
}

func newStubFraudStore() *stubFraudStore { return &stubFraudStore{} }

func (s *stubFraudStore) seed(fraudType model.FraudType, agentID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.rows = append(s.rows, &model.FraudDetection{AgentID: agentID, Type: fraudType})
	}
}

func (s *stubFraudStore) Insert(_ context.Context, fd *model.FraudDetection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd.ID = int64(len(s.rows) + 1)
	fd.DetectedAt = time.Now().UTC()
	cp := *fd
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *stubFraudStore) CountForAgent(_ context.Context, agentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fd := range s.rows {
		if fd.AgentID == agentID {
			n++
		}
	}
	return n, nil
}

func (s *stubFraudStore) CountForAgentByType(_ context.Context, agentID string, fraudType model.FraudType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, fd := range s.rows {
		if fd.AgentID == agentID && fd.Type == fraudType {
			n++
		}
	}
	return n, nil
}

func (s *stubFraudStore) CountByAgents(_ context.Context, agentIDs []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	counts := make(map[string]int64)
	for _, fd := range s.rows {
		if want[fd.AgentID] {
			counts[fd.AgentID]++
		}
	}
	return counts, nil
}

func (s *stubFraudStore) byType(fraudType model.FraudType) []*model.FraudDetection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.FraudDetection
	for _, fd := range s.rows {
		if fd.Type == fraudType {
			out = append(out, fd)
		}
	}
	return out
}

// ── In-memory stats store ──────────────────────────────────────────────────

type stubStatsStore struct {
	mu      sync.Mutex
	rows    map[string]*model.AgentStats
	ensured []string
}

func newStubStatsStore() *stubStatsStore {
	return &stubStatsStore{rows: make(map[string]*model.AgentStats)}
}

func (s *stubStatsStore) seed(st model.AgentStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[st.AgentID] = &st
}

func (s *stubStatsStore) Ensure(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, agentID)
	if _, ok := s.rows[agentID]; !ok {
		s.rows[agentID] = &model.AgentStats{AgentID: agentID}
	}
	return nil
}

func (s *stubStatsStore) Get(_ context.Context, agentID string) (*model.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[agentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *stubStatsStore) GetBatch(_ context.Context, agentIDs []string) (map[string]*model.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.AgentStats, len(agentIDs))
	for _, id := range agentIDs {
		if st, ok := s.rows[id]; ok {
			cp := *st
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *stubStatsStore) ApplyFeedback(_ context.Context, agentID string, success bool, latencyMS, weightedRating float64) (*model.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[agentID]
	if !ok {
		st = &model.AgentStats{AgentID: agentID}
		s.rows[agentID] = st
	}
	st.CallsTotal++
	if success {
		st.CallsSuccess++
	}
	st.AvgLatencyMS += (latencyMS - st.AvgLatencyMS) / float64(st.CallsTotal)
	st.AvgRating += (weightedRating - st.AvgRating) / float64(st.CallsTotal)
	now := time.Now().UTC()
	st.LastFeedbackAt = &now
	cp := *st
	return &cp, nil
}

// ── Canned fraud assessments ───────────────────────────────────────────────

type stubAnalyzer struct {
	assessment service.Assessment
	err        error
	calls      int
}

func (s *stubAnalyzer) Analyze(context.Context, *model.Agent, string, float64) (*service.Assessment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	cp := s.assessment
	return &cp, nil
}
