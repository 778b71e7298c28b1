package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// ProverService is a mock type for the ProverService type
type ProverService struct {
	mock.Mock
}

// Prove provides a mock function with given fields: ctx, req
func (_m *ProverService) Prove(ctx context.Context, req model.ProofRequest) (string, error) {
	ret := _m.Called(ctx, req)

	if rf, ok := ret.Get(0).(func(context.Context, model.ProofRequest) (string, error)); ok {
		return rf(ctx, req)
	}
	return ret.String(0), ret.Error(1)
}
