package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// ZkAddrService is a mock type for the ZkAddrService type
type ZkAddrService struct {
	mock.Mock
}

// ZkAddr provides a mock function with given fields: ctx, iss, aud, sub, salt
func (_m *ZkAddrService) ZkAddr(ctx context.Context, iss string, aud string, sub string, salt model.Salt) (model.ZkAddress, error) {
	ret := _m.Called(ctx, iss, aud, sub, salt)

	if rf, ok := ret.Get(0).(func(context.Context, string, string, string, model.Salt) (model.ZkAddress, error)); ok {
		return rf(ctx, iss, aud, sub, salt)
	}
	return ret.Get(0).(model.ZkAddress), ret.Error(1)
}
