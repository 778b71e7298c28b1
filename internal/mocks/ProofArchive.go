package mocks

import (
	context "context"
	io "io"

	mock "github.com/stretchr/testify/mock"
)

// ProofArchive is a mock type for the ProofArchive type
type ProofArchive struct {
	mock.Mock
}

// Upload provides a mock function with given fields: ctx, key, reader
func (_m *ProofArchive) Upload(ctx context.Context, key string, reader io.Reader) error {
	ret := _m.Called(ctx, key, reader)
	return ret.Error(0)
}

// Download provides a mock function with given fields: ctx, key
func (_m *ProofArchive) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ret := _m.Called(ctx, key)

	var r0 io.ReadCloser
	if rf, ok := ret.Get(0).(func(context.Context, string) io.ReadCloser); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(io.ReadCloser)
	}
	return r0, ret.Error(1)
}

// Delete provides a mock function with given fields: ctx, key
func (_m *ProofArchive) Delete(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}

// Exists provides a mock function with given fields: ctx, key
func (_m *ProofArchive) Exists(ctx context.Context, key string) (bool, error) {
	ret := _m.Called(ctx, key)
	return ret.Bool(0), ret.Error(1)
}
