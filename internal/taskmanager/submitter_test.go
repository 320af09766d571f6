package taskmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/rms"
)

func sampleRequest() *domain.Request {
	return &domain.Request{
		Name:             "00000001_00000002",
		TransformationID: 1,
		TaskID:           2,
		Type:             domain.TypeReplication,
	}
}

func TestSubmitter_SubmitsAndRecordsLedger(t *testing.T) {
	client := &fakeRMS{nextID: "req-9"}
	ledger := newFakeLedger()
	s := NewSubmitter(client, ledger, fakeLimiter{allow: true}, time.Second, discardLogger())

	res, err := s.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{RequestID: "req-9"}, res)
	assert.Equal(t, "req-9", ledger.entries["00000001_00000002"])
	assert.Len(t, client.submitted, 1)
}

func TestSubmitter_SecondSubmitReusesLedger(t *testing.T) {
	client := &fakeRMS{}
	s := NewSubmitter(client, newFakeLedger(), fakeLimiter{allow: true}, time.Second, discardLogger())

	first, err := s.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := s.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, first.RequestID, second.RequestID)
	assert.True(t, second.Reused)
	assert.Len(t, client.submitted, 1, "exactly one remote request per task")
}

func TestSubmitter_RemoteDuplicateIsReused(t *testing.T) {
	client := &fakeRMS{submitErr: &rms.DuplicateError{Name: "00000001_00000002", RequestID: "req-old"}}
	ledger := newFakeLedger()
	s := NewSubmitter(client, ledger, fakeLimiter{allow: true}, time.Second, discardLogger())

	res, err := s.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{RequestID: "req-old", Reused: true}, res)
	assert.Equal(t, "req-old", ledger.entries["00000001_00000002"])
}

func TestSubmitter_RateLimited_IsTransient(t *testing.T) {
	client := &fakeRMS{}
	s := NewSubmitter(client, newFakeLedger(), fakeLimiter{allow: false}, time.Second, discardLogger())

	_, err := s.Submit(context.Background(), sampleRequest())
	var rateErr *domain.RateLimitExceededError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Empty(t, client.submitted)
}

func TestSubmitter_RemoteErrorsPropagate(t *testing.T) {
	for name, remoteErr := range map[string]*domain.RemoteError{
		"permanent": {Op: "submit", Message: "http 400", Permanent: true},
		"transient": {Op: "submit", Message: "timeout"},
	} {
		t.Run(name, func(t *testing.T) {
			ledger := newFakeLedger()
			s := NewSubmitter(&fakeRMS{submitErr: remoteErr}, ledger, fakeLimiter{allow: true}, time.Second, discardLogger())

			_, err := s.Submit(context.Background(), sampleRequest())
			require.ErrorIs(t, err, remoteErr)
			assert.Empty(t, ledger.entries, "nothing recorded for a failed submission")
		})
	}
}

func TestSubmitter_LedgerUnavailable_DoesNotSubmit(t *testing.T) {
	client := &fakeRMS{}
	ledger := newFakeLedger()
	ledger.lookupErr = errors.New("redis down")
	s := NewSubmitter(client, ledger, fakeLimiter{allow: true}, time.Second, discardLogger())

	_, err := s.Submit(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Empty(t, client.submitted)
}

func TestSubmitter_LedgerRecordFailure_StillReturnsID(t *testing.T) {
	ledger := newFakeLedger()
	ledger.recordErr = errors.New("redis down")
	s := NewSubmitter(&fakeRMS{nextID: "req-1"}, ledger, fakeLimiter{allow: true}, time.Second, discardLogger())

	res, err := s.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.RequestID)
}

type slowRMS struct{ fakeRMS }

func (s *slowRMS) Submit(ctx context.Context, _ *domain.Request) (string, error) {
	<-ctx.Done()
	return "", &domain.RemoteError{Op: "submit", Message: "timeout", Err: ctx.Err()}
}

func TestSubmitter_TimeoutBoundsRemoteCall(t *testing.T) {
	s := NewSubmitter(&slowRMS{}, newFakeLedger(), fakeLimiter{allow: true}, 20*time.Millisecond, discardLogger())

	start := time.Now()
	_, err := s.Submit(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}
