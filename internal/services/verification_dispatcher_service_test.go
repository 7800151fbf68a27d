package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poofware/verification-service/internal/dtos"
	"github.com/poofware/verification-service/internal/metrics"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/utils"
)

type dispatcherFixture struct {
	codes      *memCodeRepo
	notifier   *fakeNotifier
	provider   *fakeProvider
	profiles   *memProfileRepo
	metrics    *metrics.Metrics
	dispatcher VerificationDispatcherService
}

func newDispatcherFixture() *dispatcherFixture {
	cfg := testConfig()
	f := &dispatcherFixture{
		codes:    &memCodeRepo{},
		notifier: &fakeNotifier{},
		provider: newFakeProvider(),
		profiles: newMemProfileRepo(),
		metrics:  metrics.New(),
	}
	ledger := &codeLedgerService{
		repo:     f.codes,
		notifier: f.notifier,
		cfg:      cfg,
		metrics:  f.metrics,
		now:      time.Now,
	}
	resolver := NewIdentityResolverService(f.profiles, newMemDirectoryRepo(), f.provider, cfg, f.metrics)
	f.dispatcher = NewVerificationDispatcherService(ledger, resolver, f.metrics)
	return f
}

func TestDispatch_Send(t *testing.T) {
	f := newDispatcherFixture()

	resp, err := f.dispatcher.Dispatch(context.Background(), dtos.PhoneVerificationRequest{
		Action: dtos.ActionSend,
		Phone:  testPhone,
	}, "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, dtos.SendCodeResponse{Message: "Verification code sent"}, resp)

	stored := f.codes.all()
	require.Len(t, stored, 1)
	assert.Equal(t, testPhone, stored[0].PhoneNumber)
	assert.False(t, stored[0].Consumed)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored[0].ExpiresAt, 5*time.Second)
	assert.Len(t, f.notifier.sent, 1)
}

func TestDispatch_SendStoresUnformattedPhones(t *testing.T) {
	f := newDispatcherFixture()
	phones := []string{"12345", "555123", "+86 138-0013-8000 ext 1", "user42"}

	for _, phone := range phones {
		resp, err := f.dispatcher.Dispatch(context.Background(), dtos.PhoneVerificationRequest{
			Action: dtos.ActionSend,
			Phone:  phone,
		}, "198.51.100.4")
		require.NoError(t, err, phone)
		assert.Equal(t, dtos.SendCodeResponse{Message: "Verification code sent"}, resp)
	}

	stored := f.codes.all()
	require.Len(t, stored, len(phones))
	for i, rec := range stored {
		assert.Equal(t, phones[i], rec.PhoneNumber)
	}
}

func TestDispatch_VerifyNeverIssuedCode(t *testing.T) {
	f := newDispatcherFixture()

	resp, err := f.dispatcher.Dispatch(context.Background(), dtos.PhoneVerificationRequest{
		Action: dtos.ActionVerify,
		Phone:  testPhone,
		Code:   "000000",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, dtos.VerifyRejectedResponse{Valid: false, Message: "验证失败：验证码错误或已过期"}, resp)
	assert.Zero(t, f.provider.createCalls)
}

func TestDispatch_VerifyNewPhone(t *testing.T) {
	f := newDispatcherFixture()
	f.codes.seed(testPhone, "654321", time.Now().Add(5*time.Minute))

	resp, err := f.dispatcher.Dispatch(context.Background(), dtos.PhoneVerificationRequest{
		Action: dtos.ActionVerify,
		Phone:  testPhone,
		Code:   "654321",
	}, "")
	require.NoError(t, err)

	accepted, ok := resp.(dtos.VerifyAcceptedResponse)
	require.True(t, ok)
	assert.True(t, accepted.Valid)
	assert.True(t, accepted.IsNewAccount)
	require.NotNil(t, accepted.Session)

	user, ok := accepted.User.(*models.Account)
	require.True(t, ok)
	assert.Equal(t, accepted.Session.User.ID, user.ID)
	assert.Equal(t, true, user.UserMetadata[models.MetadataIsPrivileged])
	assert.True(t, f.profiles.profiles[user.ID].IsPrivileged)
}

func TestDispatch_VerifySuppliedUser(t *testing.T) {
	f := newDispatcherFixture()
	f.provider.add(&models.Account{ID: "U1", Email: "u1@example.com"}, "pw")
	f.codes.seed(testPhone, "777777", time.Now().Add(5*time.Minute))

	resp, err := f.dispatcher.Dispatch(context.Background(), dtos.PhoneVerificationRequest{
		Action: dtos.ActionVerify,
		Phone:  testPhone,
		Code:   "777777",
		UserID: "U1",
	}, "")
	require.NoError(t, err)

	accepted := resp.(dtos.VerifyAcceptedResponse)
	assert.Nil(t, accepted.Session)
	assert.Equal(t, dtos.UserRef{ID: "U1"}, accepted.User)
	assert.False(t, accepted.IsNewAccount)
	assert.True(t, f.profiles.profiles["U1"].IsPrivileged)
}

func TestDispatch_VerifyTwiceRejectsSecond(t *testing.T) {
	f := newDispatcherFixture()
	f.codes.seed(testPhone, "135790", time.Now().Add(5*time.Minute))
	req := dtos.PhoneVerificationRequest{Action: dtos.ActionVerify, Phone: testPhone, Code: "135790"}

	first, err := f.dispatcher.Dispatch(context.Background(), req, "")
	require.NoError(t, err)
	assert.IsType(t, dtos.VerifyAcceptedResponse{}, first)

	second, err := f.dispatcher.Dispatch(context.Background(), req, "")
	require.NoError(t, err)
	assert.IsType(t, dtos.VerifyRejectedResponse{}, second)
}

func TestDispatch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     dtos.PhoneVerificationRequest
		kind    string
		message string
	}{
		{
			name:    "unknown action",
			req:     dtos.PhoneVerificationRequest{Action: "delete", Phone: testPhone},
			kind:    utils.ErrCodeInvalidAction,
			message: "Invalid action",
		},
		{
			name:    "missing action",
			req:     dtos.PhoneVerificationRequest{Phone: testPhone},
			kind:    utils.ErrCodeInvalidAction,
			message: "Invalid action",
		},
		{
			name:    "send without phone",
			req:     dtos.PhoneVerificationRequest{Action: dtos.ActionSend},
			kind:    utils.ErrCodeValidation,
			message: "Phone number is required",
		},
		{
			name:    "verify without code",
			req:     dtos.PhoneVerificationRequest{Action: dtos.ActionVerify, Phone: testPhone},
			kind:    utils.ErrCodeValidation,
			message: "Phone and code are required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture()
			resp, err := f.dispatcher.Dispatch(context.Background(), tt.req, "")
			require.Error(t, err)
			assert.Nil(t, resp)

			appErr := utils.ClassifyError(err)
			assert.Equal(t, tt.kind, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestActionLabel(t *testing.T) {
	assert.Equal(t, "send", actionLabel("send"))
	assert.Equal(t, "verify", actionLabel("verify"))
	assert.Equal(t, "unknown", actionLabel("DROP TABLE"))
}
