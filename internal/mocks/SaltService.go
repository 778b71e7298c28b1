package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// SaltService is a mock type for the SaltService type
type SaltService struct {
	mock.Mock
}

// Salt provides a mock function with given fields: ctx, iss, aud, sub
func (_m *SaltService) Salt(ctx context.Context, iss string, aud string, sub string) (model.Salt, error) {
	ret := _m.Called(ctx, iss, aud, sub)

	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) (model.Salt, error)); ok {
		return rf(ctx, iss, aud, sub)
	}
	return ret.Get(0).(model.Salt), ret.Error(1)
}
