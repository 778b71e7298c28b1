package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// IdentityProvider is a mock type for the IdentityProvider type
type IdentityProvider struct {
	mock.Mock
}

// AuthorizationURL provides a mock function with given fields: nonce
func (_m *IdentityProvider) AuthorizationURL(nonce string) string {
	ret := _m.Called(nonce)

	if rf, ok := ret.Get(0).(func(string) string); ok {
		return rf(nonce)
	}
	return ret.String(0)
}

// Exchange provides a mock function with given fields: ctx, code
func (_m *IdentityProvider) Exchange(ctx context.Context, code string) (model.TokenResponse, error) {
	ret := _m.Called(ctx, code)

	if rf, ok := ret.Get(0).(func(context.Context, string) (model.TokenResponse, error)); ok {
		return rf(ctx, code)
	}
	return ret.Get(0).(model.TokenResponse), ret.Error(1)
}

// Key provides a mock function with given fields: ctx, kid
func (_m *IdentityProvider) Key(ctx context.Context, kid string) (model.ProviderKey, error) {
	ret := _m.Called(ctx, kid)
	return ret.Get(0).(model.ProviderKey), ret.Error(1)
}
