package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"
)

// NonceService is a mock type for the NonceService type
type NonceService struct {
	mock.Mock
}

// Nonce provides a mock function with given fields: ctx, pubKeyHex, rndHex
func (_m *NonceService) Nonce(ctx context.Context, pubKeyHex string, rndHex string) (string, error) {
	ret := _m.Called(ctx, pubKeyHex, rndHex)

	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, pubKeyHex, rndHex)
	}
	return ret.String(0), ret.Error(1)
}
