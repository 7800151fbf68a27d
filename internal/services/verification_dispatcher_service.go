package services

import (
	"context"
	"errors"

	"github.com/poofware/verification-service/internal/dtos"
	"github.com/poofware/verification-service/internal/metrics"
	"github.com/poofware/verification-service/internal/utils"
)

const (
	MsgCodeSent     = "Verification code sent"
	MsgCodeRejected = "验证失败：验证码错误或已过期"
)

// ---------------------------------------------------------------------
// VerificationDispatcherService interface
// ---------------------------------------------------------------------

type VerificationDispatcherService interface {
	// Dispatch routes a request by action. The returned value is one of the
	// dtos response types and is always a 200 body; every failure comes
	// back as an error for utils.HandleAppError.
	Dispatch(ctx context.Context, req dtos.PhoneVerificationRequest, originIP string) (any, error)
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type verificationDispatcherService struct {
	ledger   CodeLedgerService
	resolver IdentityResolverService
	metrics  *metrics.Metrics
}

func NewVerificationDispatcherService(
	ledger CodeLedgerService,
	resolver IdentityResolverService,
	m *metrics.Metrics,
) VerificationDispatcherService {
	return &verificationDispatcherService{
		ledger:   ledger,
		resolver: resolver,
		metrics:  m,
	}
}

func (s *verificationDispatcherService) Dispatch(ctx context.Context, req dtos.PhoneVerificationRequest, originIP string) (any, error) {
	var (
		resp any
		err  error
	)
	switch req.Action {
	case dtos.ActionSend:
		resp, err = s.send(ctx, req, originIP)
	case dtos.ActionVerify:
		resp, err = s.verify(ctx, req)
	default:
		err = utils.NewInvalidActionError()
	}

	if err != nil {
		s.metrics.Request(actionLabel(req.Action), utils.ClassifyError(err).Code)
		return nil, err
	}
	s.metrics.Request(req.Action, "")
	return resp, nil
}

// actionLabel keeps arbitrary client input out of metric labels.
func actionLabel(action string) string {
	switch action {
	case dtos.ActionSend, dtos.ActionVerify:
		return action
	}
	return "unknown"
}

func (s *verificationDispatcherService) send(ctx context.Context, req dtos.PhoneVerificationRequest, originIP string) (any, error) {
	if _, err := s.ledger.Issue(ctx, req.Phone, originIP); err != nil {
		return nil, err
	}
	return dtos.SendCodeResponse{Message: MsgCodeSent}, nil
}

func (s *verificationDispatcherService) verify(ctx context.Context, req dtos.PhoneVerificationRequest) (any, error) {
	if _, err := s.ledger.Consume(ctx, req.Phone, req.Code); err != nil {
		if errors.Is(err, utils.ErrVerificationCodeNotFound) {
			return dtos.VerifyRejectedResponse{Valid: false, Message: MsgCodeRejected}, nil
		}
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.Phone, req.UserID)
	if err != nil {
		return nil, err
	}

	var user any = dtos.UserRef{ID: res.UserID}
	if res.Session != nil && res.Session.User != nil {
		user = res.Session.User
	}
	return dtos.VerifyAcceptedResponse{
		Valid:        true,
		Session:      res.Session,
		User:         user,
		IsNewAccount: res.IsNewAccount,
	}, nil
}
