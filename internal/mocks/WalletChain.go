package mocks

import (
	context "context"

	common "github.com/ethereum/go-ethereum/common"
	mock "github.com/stretchr/testify/mock"

	model "github.com/dtroode/zklogin-recovery/internal/model"
)

// WalletChain is a mock type for the WalletChain type
type WalletChain struct {
	mock.Mock
}

// WalletAddress provides a mock function with given fields: ctx, initialOwner
func (_m *WalletChain) WalletAddress(ctx context.Context, initialOwner common.Address) (common.Address, error) {
	ret := _m.Called(ctx, initialOwner)
	return ret.Get(0).(common.Address), ret.Error(1)
}

// IsDeployed provides a mock function with given fields: ctx, account
func (_m *WalletChain) IsDeployed(ctx context.Context, account common.Address) (bool, error) {
	ret := _m.Called(ctx, account)
	return ret.Bool(0), ret.Error(1)
}

// CreateAccount provides a mock function with given fields: ctx, initialOwner
func (_m *WalletChain) CreateAccount(ctx context.Context, initialOwner common.Address) (common.Hash, error) {
	ret := _m.Called(ctx, initialOwner)
	return ret.Get(0).(common.Hash), ret.Error(1)
}

// Owners provides a mock function with given fields: ctx, account
func (_m *WalletChain) Owners(ctx context.Context, account common.Address) ([]model.Owner, error) {
	ret := _m.Called(ctx, account)

	var r0 []model.Owner
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Owner)
	}
	return r0, ret.Error(1)
}

// RegisteredZkAddr provides a mock function with given fields: ctx, account
func (_m *WalletChain) RegisteredZkAddr(ctx context.Context, account common.Address) (model.ZkAddress, error) {
	ret := _m.Called(ctx, account)
	return ret.Get(0).(model.ZkAddress), ret.Error(1)
}

// LinkRecovery provides a mock function with given fields: ctx, account, zkAddr
func (_m *WalletChain) LinkRecovery(ctx context.Context, account common.Address, zkAddr model.ZkAddress) (common.Hash, error) {
	ret := _m.Called(ctx, account, zkAddr)
	return ret.Get(0).(common.Hash), ret.Error(1)
}

// RemoveOwnerAtIndex provides a mock function with given fields: ctx, account, index, owner
func (_m *WalletChain) RemoveOwnerAtIndex(ctx context.Context, account common.Address, index uint64, owner model.Owner) (common.Hash, error) {
	ret := _m.Called(ctx, account, index, owner)
	return ret.Get(0).(common.Hash), ret.Error(1)
}

// RecoverAccount provides a mock function with given fields: ctx, call
func (_m *WalletChain) RecoverAccount(ctx context.Context, call model.RecoveryCall) (common.Hash, error) {
	ret := _m.Called(ctx, call)
	return ret.Get(0).(common.Hash), ret.Error(1)
}
