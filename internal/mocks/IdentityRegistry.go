package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// IdentityRegistry is a mock type for the IdentityRegistry type
type IdentityRegistry struct {
	mock.Mock
}

// Touch provides a mock function with given fields: ctx, record
func (_m *IdentityRegistry) Touch(ctx context.Context, record model.IdentityRecord) (model.IdentityRecord, error) {
	ret := _m.Called(ctx, record)

	if rf, ok := ret.Get(0).(func(context.Context, model.IdentityRecord) (model.IdentityRecord, error)); ok {
		return rf(ctx, record)
	}
	return ret.Get(0).(model.IdentityRecord), ret.Error(1)
}

// GetByZkAddr provides a mock function with given fields: ctx, zkAddr
func (_m *IdentityRegistry) GetByZkAddr(ctx context.Context, zkAddr model.ZkAddress) (model.IdentityRecord, error) {
	ret := _m.Called(ctx, zkAddr)
	return ret.Get(0).(model.IdentityRecord), ret.Error(1)
}
