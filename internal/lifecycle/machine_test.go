package lifecycle_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/dispute"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/lifecycle"
	"github.com/cuongbtq/agenthire/internal/mocks"
	"github.com/cuongbtq/agenthire/internal/storage"
	"github.com/cuongbtq/agenthire/internal/webhook"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	buyer    = domain.Actor{Wallet: "0xbuyer"}
	owner    = domain.Actor{Wallet: "0xowner"}
	admin    = domain.Actor{Wallet: "0xadmin", Admin: true}
	stranger = domain.Actor{Wallet: "0xstranger"}
	system   = domain.SystemActor
)

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (s *recordingScheduler) Schedule(_ context.Context, job *domain.Job, _ *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job.ID)
	return s.err
}

func (s *recordingScheduler) scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

type fixture struct {
	machine   *lifecycle.Machine
	store     *storage.Memory
	verifier  *mocks.MockPaymentVerifier
	scheduler *recordingScheduler
	agent     *domain.Agent
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		store:     storage.NewMemory(),
		verifier:  mocks.NewMockPaymentVerifier(ctrl),
		scheduler: &recordingScheduler{},
	}
	f.machine = lifecycle.NewMachine(lifecycle.Dependencies{
		Store:     f.store,
		Verifier:  f.verifier,
		Scheduler: f.scheduler,
		Resolver:  dispute.NewResolver(dispute.DefaultPartialPercent),
		Logger:    discardLogger(),
	})

	agent, err := f.machine.RegisterAgent(context.Background(), owner, domain.NewAgent{
		Name:          "summarizer",
		PayoutAddress: "0xpayout",
	})
	require.NoError(t, err)
	f.agent = agent
	return f
}

// jobIn creates a job and forces it into status through the store.
func (f *fixture) jobIn(t *testing.T, status domain.Status) *domain.Job {
	t.Helper()
	ctx := context.Background()

	job, err := f.machine.CreateJob(ctx, buyer, domain.NewJob{
		AgentID:    f.agent.ID,
		SkillID:    "skill-1",
		ServiceKey: "summarize",
		Input:      json.RawMessage(`{"text":"hello"}`),
		Price:      domain.MustParseMoney("10.00"),
	})
	require.NoError(t, err)
	if status == domain.StatusPending {
		return job
	}

	paidAt := time.Now().UTC().Add(-time.Hour)
	job, err = f.store.UpdateJobStatus(ctx, job.ID, domain.StatusPending, domain.JobUpdate{
		Status: status,
		PaidAt: &paidAt,
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) status(t *testing.T, jobID string) domain.Status {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job.Status
}

func (f *fixture) storedAgent(t *testing.T) *domain.Agent {
	t.Helper()
	agent, err := f.store.GetAgent(context.Background(), f.agent.ID)
	require.NoError(t, err)
	return agent
}

func (f *fixture) expectValidPayment() {
	f.verifier.EXPECT().
		Verify(gomock.Any(), gomock.Any(), domain.MustParseMoney("10.00"), "0xpayout").
		Return(domain.PaymentVerification{Valid: true, Amount: domain.MustParseMoney("10.00"), BlockNumber: 42}, nil).
		AnyTimes()
}

// commandFor builds a well-formed command for event raised by the actor
// entitled to it.
func commandFor(jobID string, event domain.Event) lifecycle.Command {
	cmd := lifecycle.Command{JobID: jobID, Event: event}
	switch event {
	case domain.EventPaymentConfirmed:
		cmd.Actor = buyer
		cmd.TxRef = "0xtx-" + jobID
	case domain.EventAgentAccept, domain.EventAgentDecline:
		cmd.Actor = owner
	case domain.EventAgentDeliver:
		cmd.Actor = owner
		cmd.Output = json.RawMessage(`{"summary":"done"}`)
	case domain.EventPurchaserApprove, domain.EventPurchaserRevision:
		cmd.Actor = buyer
	case domain.EventPurchaserDispute:
		cmd.Actor = buyer
		cmd.Reason = "output is empty"
	case domain.EventDisputeResolved:
		cmd.Actor = admin
		cmd.Outcome = dispute.OutcomeRefund
	case domain.EventProcessingFailed:
		cmd.Actor = system
		cmd.Error = "processor crashed"
	}
	return cmd
}

func TestMachine_RejectsEveryUnlistedPair(t *testing.T) {
	for _, status := range domain.AllStatuses {
		for _, event := range domain.AllEvents {
			if lifecycle.Permits(status, event) {
				continue
			}
			t.Run(string(status)+"/"+string(event), func(t *testing.T) {
				f := newFixture(t)
				job := f.jobIn(t, status)

				_, err := f.machine.Apply(context.Background(), commandFor(job.ID, event))

				require.Error(t, err)
				assert.True(t, domain.IsValidation(err), "got %v", err)
				assert.Equal(t, status, domain.StatusOf(err))
				assert.Contains(t, err.Error(), string(status))
				assert.Equal(t, status, f.status(t, job.ID))
			})
		}
	}
}

func TestMachine_AppliesEveryListedPair(t *testing.T) {
	for _, status := range domain.AllStatuses {
		for _, event := range domain.AllEvents {
			if !lifecycle.Permits(status, event) {
				continue
			}
			t.Run(string(status)+"/"+string(event), func(t *testing.T) {
				f := newFixture(t)
				f.expectValidPayment()
				job := f.jobIn(t, status)

				updated, err := f.machine.Apply(context.Background(), commandFor(job.ID, event))

				require.NoError(t, err)
				assert.Contains(t, lifecycle.Targets(event), updated.Status)
				assert.Equal(t, updated.Status, f.status(t, job.ID))
			})
		}
	}
}

func TestMachine_TerminalStatusesRejectEverything(t *testing.T) {
	for _, status := range domain.AllStatuses {
		if !status.IsTerminal() {
			continue
		}
		for _, event := range domain.AllEvents {
			assert.False(t, lifecycle.Permits(status, event), "%s accepts %s", status, event)
		}
	}
}

func TestMachine_ConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("valid payment moves job to paid and schedules dispatch", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPending)

		f.verifier.EXPECT().
			Verify(gomock.Any(), "0xtx", domain.MustParseMoney("10.00"), "0xpayout").
			Return(domain.PaymentVerification{Valid: true, Amount: domain.MustParseMoney("10.00"), BlockNumber: 7}, nil)

		paid, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, " 0xtx ")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, paid.Status)
		require.NotNil(t, paid.PaymentTxRef)
		assert.Equal(t, "0xtx", *paid.PaymentTxRef)
		assert.NotNil(t, paid.PaidAt)
		assert.Equal(t, []string{job.ID}, f.scheduler.scheduled())
	})

	t.Run("invalid payment is an external verification failure", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPending)

		f.verifier.EXPECT().
			Verify(gomock.Any(), "0xtx", gomock.Any(), gomock.Any()).
			Return(domain.PaymentVerification{Valid: false, Error: "wrong recipient"}, nil)

		_, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, "0xtx")
		require.Error(t, err)
		assert.True(t, domain.IsExternalVerification(err))
		assert.Contains(t, err.Error(), "wrong recipient")
		assert.Equal(t, domain.StatusPending, f.status(t, job.ID))
		assert.Empty(t, f.scheduler.scheduled())
	})

	t.Run("underpayment is rejected", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPending)

		f.verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.PaymentVerification{Valid: true, Amount: domain.MustParseMoney("9.99")}, nil)

		_, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, "0xtx")
		assert.True(t, domain.IsExternalVerification(err))
		assert.Equal(t, domain.StatusPending, f.status(t, job.ID))
	})

	t.Run("verifier errors never escape raw", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPending)
		cause := errors.New("rpc node unreachable")

		f.verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.PaymentVerification{}, cause)

		_, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, "0xtx")
		assert.True(t, domain.IsExternalVerification(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, domain.StatusPending, f.status(t, job.ID))
	})

	t.Run("scheduler failure does not undo payment", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidPayment()
		f.scheduler.err = errors.New("broker down")
		job := f.jobIn(t, domain.StatusPending)

		paid, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, "0xtx")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, paid.Status)
	})

	t.Run("missing transaction reference", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPending)

		_, err := f.machine.ConfirmPayment(ctx, buyer, job.ID, "  ")
		assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
	})
}

func TestMachine_ApproveCreditsAgentOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusDelivered)
	rating := 5

	completed, err := f.machine.Approve(ctx, buyer, job.ID, &rating)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	_, err = f.machine.Approve(ctx, buyer, job.ID, &rating)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StatusCompleted, domain.StatusOf(err))

	agent := f.storedAgent(t)
	assert.Equal(t, 1, agent.TotalJobs)
	assert.Equal(t, domain.MustParseMoney("10.00"), agent.TotalEarned)
	assert.Equal(t, 5.0, agent.AverageRating)
	assert.Equal(t, 1, agent.RatingCount)
}

func TestMachine_ConcurrentApproveHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusDelivered)

	var wins, rejections atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.Approve(ctx, buyer, job.ID, nil)
			switch {
			case err == nil:
				wins.Add(1)
			case domain.IsValidation(err):
				rejections.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), rejections.Load())
	assert.Equal(t, domain.MustParseMoney("10.00"), f.storedAgent(t).TotalEarned)
}

func TestMachine_DeliverThenApproveScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusInProgress)

	delivered, err := f.machine.Deliver(ctx, owner, job.ID, json.RawMessage(`{"summary":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)
	assert.JSONEq(t, `{"summary":"ok"}`, string(delivered.Output))
	assert.NotNil(t, delivered.DeliveredAt)

	completed, err := f.machine.Approve(ctx, buyer, job.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	agent := f.storedAgent(t)
	assert.Equal(t, 1, agent.TotalJobs)
	assert.Equal(t, domain.MustParseMoney("10.00"), agent.TotalEarned)
	assert.Equal(t, 1, agent.ResponseSamples)
	assert.Equal(t, "new", agent.TrustTier)
	assert.Greater(t, agent.TrustScore, 0.0)
}

func TestMachine_ResponseTimeCountsFirstDeliveryOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusInProgress)

	_, err := f.machine.Deliver(ctx, owner, job.ID, json.RawMessage(`1`))
	require.NoError(t, err)
	_, err = f.machine.RequestRevision(ctx, buyer, job.ID)
	require.NoError(t, err)
	_, err = f.machine.Deliver(ctx, owner, job.ID, json.RawMessage(`2`))
	require.NoError(t, err)

	agent := f.storedAgent(t)
	assert.Equal(t, 1, agent.ResponseSamples)
	assert.InDelta(t, time.Hour.Milliseconds(), agent.AvgResponseMillis, float64(time.Minute.Milliseconds()))
}

func TestMachine_Decline(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		from       domain.Status
		wantRefund domain.Money
		wantCount  int
	}{
		{"unpaid job refunds nothing", domain.StatusPending, 0, 0},
		{"paid job refunds the price", domain.StatusPaid, domain.MustParseMoney("10.00"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			job := f.jobIn(t, tt.from)

			refunded, err := f.machine.Decline(ctx, owner, job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusRefunded, refunded.Status)
			require.NotNil(t, refunded.RefundAmount)
			assert.Equal(t, tt.wantRefund, *refunded.RefundAmount)
			assert.NotNil(t, refunded.RefundedAt)
			assert.Equal(t, tt.wantCount, f.storedAgent(t).RefundedJobs)
		})
	}
}

func TestMachine_ResolveDispute(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		outcome     dispute.Outcome
		wantStatus  domain.Status
		wantRefund  domain.Money
		wantEarned  domain.Money
		wantRefunds int
	}{
		{dispute.OutcomeRefund, domain.StatusRefunded, domain.MustParseMoney("10.00"), 0, 1},
		{dispute.OutcomePartial, domain.StatusRefunded, domain.MustParseMoney("5.00"), 0, 1},
		{dispute.OutcomeRelease, domain.StatusCompleted, 0, domain.MustParseMoney("10.00"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			f := newFixture(t)
			job := f.jobIn(t, domain.StatusDelivered)

			disputed, err := f.machine.Dispute(ctx, buyer, job.ID, "not what I asked for")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusDisputed, disputed.Status)
			require.NotNil(t, disputed.DisputeReason)

			_, err = f.machine.ResolveDispute(ctx, buyer, job.ID, tt.outcome)
			assert.True(t, domain.IsAuthorization(err))

			resolved, err := f.machine.ResolveDispute(ctx, admin, job.ID, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resolved.Status)
			require.NotNil(t, resolved.RefundAmount)
			assert.Equal(t, tt.wantRefund, *resolved.RefundAmount)
			assert.NotNil(t, resolved.ResolvedAt)
			assert.NotNil(t, resolved.TerminalAt())
			assert.True(t, resolved.Status.IsTerminal())

			agent := f.storedAgent(t)
			assert.Equal(t, tt.wantEarned, agent.TotalEarned)
			assert.Equal(t, tt.wantRefunds, agent.RefundedJobs)

			for _, event := range domain.AllEvents {
				_, err := f.machine.Apply(ctx, commandFor(job.ID, event))
				assert.True(t, domain.IsValidation(err), "event %s", event)
			}
			assert.Equal(t, tt.wantStatus, f.status(t, job.ID))
		})
	}
}

func TestMachine_Authorization(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		from  domain.Status
		event domain.Event
		actor domain.Actor
	}{
		{"stranger cannot approve", domain.StatusDelivered, domain.EventPurchaserApprove, stranger},
		{"agent cannot approve its own work", domain.StatusDelivered, domain.EventPurchaserApprove, owner},
		{"purchaser cannot accept", domain.StatusPaid, domain.EventAgentAccept, buyer},
		{"purchaser cannot deliver", domain.StatusInProgress, domain.EventAgentDeliver, buyer},
		{"purchaser cannot resolve", domain.StatusDisputed, domain.EventDisputeResolved, buyer},
		{"agent cannot fail a job", domain.StatusPaid, domain.EventProcessingFailed, owner},
		{"system cannot approve", domain.StatusDelivered, domain.EventPurchaserApprove, system},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			job := f.jobIn(t, tt.from)

			cmd := commandFor(job.ID, tt.event)
			cmd.Actor = tt.actor
			_, err := f.machine.Apply(ctx, cmd)

			assert.True(t, domain.IsAuthorization(err), "got %v", err)
			assert.Equal(t, tt.from, f.status(t, job.ID))
		})
	}
}

func TestMachine_CommandValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusDelivered)
	bad := 6

	_, err := f.machine.Approve(ctx, buyer, job.ID, &bad)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = f.machine.Dispute(ctx, buyer, job.ID, "")
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = f.machine.ResolveDispute(ctx, admin, job.ID, "split")
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = f.machine.Apply(ctx, lifecycle.Command{JobID: job.ID, Event: "teleport", Actor: admin})
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = f.machine.Accept(ctx, owner, uuid.New().String())
	assert.True(t, domain.IsNotFound(err))

	assert.Equal(t, domain.StatusDelivered, f.status(t, job.ID))
}

func TestMachine_ApplyOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("failed outcome fails the job", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPaid)

		err := f.machine.ApplyOutcome(ctx, dispatch.Outcome{
			JobID:   job.ID,
			Kind:    dispatch.OutcomeFailed,
			Message: domain.WebhookFailureMessage,
		})
		require.NoError(t, err)

		stored, err := f.store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, domain.WebhookFailureMessage, *stored.ErrorMessage)
		assert.Equal(t, 1, f.storedAgent(t).FailedJobs)
	})

	t.Run("delivered outcome stores processor output", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPaid)

		err := f.machine.ApplyOutcome(ctx, dispatch.Outcome{
			JobID:  job.ID,
			Kind:   dispatch.OutcomeDelivered,
			Output: json.RawMessage(`{"image":"ipfs://x"}`),
		})
		require.NoError(t, err)

		stored, err := f.store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, stored.Status)
		assert.JSONEq(t, `{"image":"ipfs://x"}`, string(stored.Output))
	})

	t.Run("acknowledged outcome leaves the job alone", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPaid)

		require.NoError(t, f.machine.ApplyOutcome(ctx, dispatch.Outcome{JobID: job.ID, Kind: dispatch.OutcomeAcknowledged}))
		assert.Equal(t, domain.StatusPaid, f.status(t, job.ID))
	})

	t.Run("late failure after the agent accepted is rejected", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusPaid)

		_, err := f.machine.Accept(ctx, owner, job.ID)
		require.NoError(t, err)

		err = f.machine.ApplyOutcome(ctx, dispatch.Outcome{
			JobID:   job.ID,
			From:    domain.StatusPaid,
			Kind:    dispatch.OutcomeFailed,
			Message: domain.WebhookFailureMessage,
		})
		assert.True(t, domain.IsValidation(err))
		assert.Equal(t, domain.StatusInProgress, domain.StatusOf(err))
		assert.Equal(t, domain.StatusInProgress, f.status(t, job.ID))
		assert.Zero(t, f.storedAgent(t).FailedJobs)
	})

	t.Run("late failure on a moved job is rejected", func(t *testing.T) {
		f := newFixture(t)
		job := f.jobIn(t, domain.StatusDelivered)

		err := f.machine.ApplyOutcome(ctx, dispatch.Outcome{JobID: job.ID, Kind: dispatch.OutcomeFailed})
		assert.True(t, domain.IsValidation(err))
		assert.Equal(t, domain.StatusDelivered, f.status(t, job.ID))
	})
}

func TestMachine_WebhookNotFoundFailsJob(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := storage.NewMemory()
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockPaymentVerifier(ctrl)
	verifier.EXPECT().
		Verify(gomock.Any(), "0xtx", domain.MustParseMoney("10.00"), "0xpayout").
		Return(domain.PaymentVerification{Valid: true}, nil)

	executor := dispatch.NewExecutor(webhook.NewDispatcher(discardLogger()), nil, dispatch.ExecutorOptions{}, discardLogger())
	background := dispatch.NewBackground(executor, 0, discardLogger())

	machine := lifecycle.NewMachine(lifecycle.Dependencies{
		Store:     store,
		Verifier:  verifier,
		Scheduler: background,
		Logger:    discardLogger(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = background.Run(runCtx, machine)
	}()
	defer func() {
		cancel()
		<-done
	}()

	hook := srv.URL
	agent, err := machine.RegisterAgent(ctx, owner, domain.NewAgent{Name: "hooked", PayoutAddress: "0xpayout", WebhookURL: &hook})
	require.NoError(t, err)
	job, err := machine.CreateJob(ctx, buyer, domain.NewJob{
		AgentID:    agent.ID,
		ServiceKey: "summarize",
		Price:      domain.MustParseMoney("10.00"),
	})
	require.NoError(t, err)

	paid, err := machine.ConfirmPayment(ctx, buyer, job.ID, "0xtx")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.Status == domain.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Webhook delivery failed", *stored.ErrorMessage)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMachine_CreateJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name     string
		actor    domain.Actor
		req      domain.NewJob
		wantKind domain.Kind
	}{
		{"anonymous", domain.Actor{}, domain.NewJob{AgentID: f.agent.ID, ServiceKey: "s", Price: 100}, domain.KindAuthorization},
		{"zero price", buyer, domain.NewJob{AgentID: f.agent.ID, ServiceKey: "s"}, domain.KindBadRequest},
		{"missing agent id", buyer, domain.NewJob{ServiceKey: "s", Price: 100}, domain.KindBadRequest},
		{"unknown agent", buyer, domain.NewJob{AgentID: uuid.New().String(), ServiceKey: "s", Price: 100}, domain.KindNotFound},
		{"bad input", buyer, domain.NewJob{AgentID: f.agent.ID, ServiceKey: "s", Price: 100, Input: json.RawMessage(`{`)}, domain.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.machine.CreateJob(ctx, tt.actor, tt.req)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
		})
	}

	job, err := f.machine.CreateJob(ctx, buyer, domain.NewJob{AgentID: f.agent.ID, ServiceKey: "s", Price: 100})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, buyer.Wallet, job.RequesterWallet)
	_, err = uuid.Parse(job.ID)
	assert.NoError(t, err)
}

func TestMachine_Visibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.jobIn(t, domain.StatusPending)

	for _, actor := range []domain.Actor{buyer, owner, admin} {
		_, err := f.machine.GetJob(ctx, actor, job.ID)
		assert.NoError(t, err, "actor %s", actor.Wallet)
	}
	_, err := f.machine.GetJob(ctx, stranger, job.ID)
	assert.True(t, domain.IsAuthorization(err))

	page, err := f.machine.ListJobs(ctx, stranger, domain.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Jobs)

	page, err = f.machine.ListJobs(ctx, owner, domain.JobFilter{AgentID: f.agent.ID})
	require.NoError(t, err)
	assert.Len(t, page.Jobs, 1)

	page, err = f.machine.ListJobs(ctx, stranger, domain.JobFilter{AgentID: f.agent.ID})
	require.NoError(t, err)
	assert.Empty(t, page.Jobs)
}

func TestMachine_RefreshTrust(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rating := 5
	for i := 0; i < 5; i++ {
		_, err := f.store.UpdateAgentStats(ctx, f.agent.ID, domain.StatsDelta{
			CompletedJobs: 1,
			Earned:        domain.MustParseMoney("10.00"),
			Rating:        &rating,
		})
		require.NoError(t, err)
	}

	agent, assessment, err := f.machine.RefreshTrust(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "rising", assessment.Tier.String())
	assert.Equal(t, "rising", agent.TrustTier)
	assert.Equal(t, "rising", f.storedAgent(t).TrustTier)
}
